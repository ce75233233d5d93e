package index

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// fileMeta is what the builder pulls out of a Markdown file's YAML
// frontmatter block. Files without frontmatter yield the zero value.
type fileMeta struct {
	Tags     []string
	Category string
}

// parseFrontmatter reads the YAML block between leading --- delimiters.
// Malformed YAML or a missing closing delimiter is not an error; the file is
// simply treated as having no frontmatter.
func parseFrontmatter(data []byte) fileMeta {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")
	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return fileMeta{}
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return fileMeta{}
	}

	var fm map[string]any
	if err := yaml.Unmarshal(rest[:idx], &fm); err != nil {
		return fileMeta{}
	}

	var meta fileMeta
	if raw, ok := fm["tags"]; ok {
		switch v := raw.(type) {
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					if s = strings.TrimSpace(s); s != "" {
						meta.Tags = append(meta.Tags, s)
					}
				}
			}
		case string:
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					meta.Tags = append(meta.Tags, s)
				}
			}
		}
	}
	if raw, ok := fm["category"]; ok {
		if s, ok := raw.(string); ok {
			meta.Category = strings.TrimSpace(s)
		}
	}
	return meta
}
