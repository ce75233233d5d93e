// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Raido tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/search"
)

// Server wraps the MCP server with Raido tools.
type Server struct {
	mcp *server.MCPServer
	svc *api.Service
}

// New creates a new MCP server with all Raido tools registered.
func New(svc *api.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Raido",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_archive",
		mcp.WithDescription("Search the indexed chat archive. Modes: exact (token match), "+
			"fuzzy (approximate spelling), stem (related word forms)."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithString("mode", mcp.Description("exact, fuzzy, or stem (default exact)")),
		mcp.WithString("logic", mcp.Description("AND or OR for multi-term queries")),
		mcp.WithNumber("limit", mcp.Description("Max results for stem mode")),
	), s.searchArchive)

	s.mcp.AddTool(mcp.NewTool("extract_entries",
		mcp.WithDescription("Scan a folder of chat exports and write all recognized "+
			"entries as one JSON array."),
		mcp.WithString("folder", mcp.Required(), mcp.Description("Folder to scan")),
		mcp.WithString("output_path", mcp.Required(), mcp.Description("Where to write the entry dataset")),
	), s.extractEntries)

	s.mcp.AddTool(mcp.NewTool("build_index",
		mcp.WithDescription("Build or incrementally update the token index over a folder."),
		mcp.WithString("folder", mcp.Required(), mcp.Description("Folder to index")),
	), s.buildIndex)

	s.mcp.AddTool(mcp.NewTool("index_stats",
		mcp.WithDescription("Report the loaded index's file count, token count, and state."),
	), s.indexStats)

	s.mcp.AddTool(mcp.NewTool("read_entry_dataset",
		mcp.WithDescription("Read a previously extracted entry dataset, optionally "+
			"filtered by entry type."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the entry dataset JSON file")),
		mcp.WithString("type", mcp.Description("Only return entries of this type")),
		mcp.WithNumber("limit", mcp.Description("Max entries to return (default all)")),
	), s.readEntryDataset)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchArchive(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q := search.Query{
		Text:  query,
		Mode:  search.Mode(req.GetString("mode", "")),
		Logic: search.Logic(req.GetString("logic", "")),
		Limit: req.GetInt("limit", 0),
	}
	resp, err := s.svc.Search(q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if resp.Diagnostic != "" {
		return mcp.NewToolResultText(resp.Diagnostic), nil
	}
	out, _ := json.MarshalIndent(resp.Results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) extractEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder, err := req.RequireString("folder")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	outputPath, err := req.RequireString("output_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := s.svc.Extract(ctx, folder, outputPath)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) buildIndex(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder, err := req.RequireString("folder")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	stats, err := s.svc.BuildIndex(ctx, folder)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("indexed %d files, %d tokens", stats.FileCount, stats.TokenCount)), nil
}

func (s *Server) readEntryDataset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read dataset: %v", err)), nil
	}
	var entries []models.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("parse dataset: %v", err)), nil
	}
	if want := req.GetString("type", ""); want != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if string(e.Type) == want {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if limit := req.GetInt("limit", 0); limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out, _ := json.MarshalIndent(entries, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) indexStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, state, err := s.svc.IndexStats()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(map[string]any{
		"state":       state,
		"file_count":  stats.FileCount,
		"token_count": stats.TokenCount,
		"bytes":       stats.Bytes,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}
