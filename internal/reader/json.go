package reader

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/starford/raido/internal/models"
)

// jsonExport mirrors the exported-conversation document shape. Absent fields
// decode to zero values and are treated as empty.
type jsonExport struct {
	Mapping map[string]jsonMappingNode `json:"mapping"`
}

type jsonMappingNode struct {
	Message *jsonMessage `json:"message"`
}

type jsonMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	CreateTime *float64    `json:"create_time"`
	Content    jsonContent `json:"content"`
}

type jsonContent struct {
	ContentType  string `json:"content_type"`
	Parts        []any  `json:"parts"`
	AssetPointer string `json:"asset_pointer"`
}

// parseJSONExport walks the mapping in chat order (create_time ascending,
// nulls last) and renders each message's text parts. Image references become
// [image_NNN] placeholder tokens.
func (r *Reader) parseJSONExport(data []byte) (*models.Blob, error) {
	var doc jsonExport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("reader: parse json export: %w", err)
	}

	type keyed struct {
		id  string
		msg *jsonMessage
	}
	nodes := make([]keyed, 0, len(doc.Mapping))
	for id, node := range doc.Mapping {
		if node.Message == nil {
			continue
		}
		nodes = append(nodes, keyed{id: id, msg: node.Message})
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i].msg.CreateTime, nodes[j].msg.CreateTime
		switch {
		case a == nil && b == nil:
			return nodes[i].id < nodes[j].id
		case a == nil:
			return false // nulls sort last
		case b == nil:
			return true
		case *a != *b:
			return *a < *b
		default:
			return nodes[i].id < nodes[j].id
		}
	})

	var (
		sb       strings.Builder
		messages []models.Message
		imageSeq int
	)
	for _, n := range nodes {
		text := renderContent(n.msg.Content, &imageSeq)
		if text == "" {
			continue
		}
		m := models.Message{
			Role: n.msg.Author.Role,
			Text: text,
		}
		if n.msg.CreateTime != nil {
			m.Timestamp = time.Unix(int64(*n.msg.CreateTime), 0).UTC().Format("2006-01-02 15:04:05")
		}
		messages = append(messages, m)

		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		if r.opts.RoleHeaders && m.Role != "" {
			sb.WriteString(m.Role)
			sb.WriteString(":\n")
		}
		sb.WriteString(text)
	}

	return &models.Blob{Text: sb.String(), Kind: "json", Messages: messages}, nil
}

// renderContent flattens one message content record into text. seq numbers
// image placeholders across the whole document.
func renderContent(c jsonContent, seq *int) string {
	switch c.ContentType {
	case "image_asset_pointer":
		return nextImageToken(seq)
	case "text", "multimodal_text", "":
		var parts []string
		for _, p := range c.Parts {
			switch v := p.(type) {
			case string:
				if strings.HasPrefix(v, "data:") {
					parts = append(parts, nextImageToken(seq))
				} else if v != "" {
					parts = append(parts, v)
				}
			case map[string]any:
				// Nested image pointer inside a multimodal part.
				if ct, _ := v["content_type"].(string); ct == "image_asset_pointer" {
					parts = append(parts, nextImageToken(seq))
				}
			}
		}
		return strings.TrimSpace(strings.Join(parts, "\n"))
	default:
		return ""
	}
}

func nextImageToken(seq *int) string {
	*seq++
	return fmt.Sprintf("[image_%03d]", *seq)
}
