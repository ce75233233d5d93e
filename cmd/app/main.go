package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/raido/internal"
	"github.com/starford/raido/internal/api"
	"github.com/starford/raido/internal/mcpserver"
	"github.com/starford/raido/internal/search"
	pkgconfig "github.com/starford/raido/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// cliService builds the component graph for one-shot commands, logging to
// stderr so stdout stays clean for command output.
func cliService(cfg *internal.Config) (*api.Service, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	return internal.NewService(cfg, logger)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func extractAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	folder := cmd.String("folder")
	if folder == "" {
		folder = cfg.Archive.Path
	}
	output := cmd.String("output")
	if output == "" {
		output = cfg.Extract.OutputPath
	}

	svc, err := cliService(cfg)
	if err != nil {
		return err
	}
	report, err := svc.Extract(ctx, folder, output)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func indexAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	folder := cmd.String("folder")
	if folder == "" {
		folder = cfg.Archive.Path
	}

	svc, err := cliService(cfg)
	if err != nil {
		return err
	}
	stats, err := svc.BuildIndex(ctx, folder)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func searchAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	query := cmd.String("query")
	if query == "" && cmd.Args().Len() > 0 {
		query = cmd.Args().First()
	}
	if query == "" {
		return fmt.Errorf("a query is required")
	}

	svc, err := cliService(cfg)
	if err != nil {
		return err
	}
	if err := svc.LoadIndex(); err != nil {
		return fmt.Errorf("load index (build it first with 'raido index'): %w", err)
	}

	resp, err := svc.Search(search.Query{
		Text:        query,
		Mode:        search.Mode(cmd.String("mode")),
		Logic:       search.Logic(cmd.String("logic")),
		WithContext: cmd.Bool("context"),
		Limit:       int(cmd.Int("limit")),
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func statsAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, err := cliService(cfg)
	if err != nil {
		return err
	}
	if err := svc.LoadIndex(); err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	stats, state, err := svc.IndexStats()
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"state":       state,
		"file_count":  stats.FileCount,
		"token_count": stats.TokenCount,
		"bytes":       stats.Bytes,
	})
}

func mcpAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	svc, err := cliService(cfg)
	if err != nil {
		return err
	}
	// Best effort: tools work without a loaded index until one is built.
	if err := svc.LoadIndex(); err != nil {
		slog.Warn("no index loaded at startup", slog.String("error", err.Error()))
	}

	return mcpserver.New(svc).ServeStdio()
}

func main() {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file",
		Value:   "config/config.yaml",
		Sources: cli.EnvVars("APP_CONFIG_FILE"),
	}
	folderFlag := &cli.StringFlag{
		Name:  "folder",
		Usage: "Archive folder (defaults to the configured archive path)",
	}

	cmd := &cli.Command{
		Name:  "raido",
		Usage: "Chat-archive entry extraction, token indexing, and search",
		Flags: []cli.Flag{configFlag},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API server with the archive watcher",
				Action: serveAction,
			},
			{
				Name:  "extract",
				Usage: "Scan a folder and write all recognized entries as one JSON array",
				Flags: []cli.Flag{
					folderFlag,
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output dataset path"},
				},
				Action: extractAction,
			},
			{
				Name:   "index",
				Usage:  "Build or incrementally update the token index",
				Flags:  []cli.Flag{folderFlag},
				Action: indexAction,
			},
			{
				Name:  "search",
				Usage: "Query the index",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Query text"},
					&cli.StringFlag{Name: "mode", Usage: "exact, fuzzy, or stem"},
					&cli.StringFlag{Name: "logic", Usage: "AND or OR"},
					&cli.BoolFlag{Name: "context", Usage: "Include context snippets"},
					&cli.IntFlag{Name: "limit", Usage: "Max results for stem mode"},
				},
				Action: searchAction,
			},
			{
				Name:   "stats",
				Usage:  "Show loaded index statistics",
				Action: statsAction,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tool interface on stdio",
				Action: mcpAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
