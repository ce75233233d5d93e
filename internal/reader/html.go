package reader

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/starford/raido/internal/models"
)

// parseHTML extracts chat messages from an HTML export. Message containers
// are selected by the data-message-author attribute or a "message" class;
// when neither appears anywhere in the document, <article> elements are used
// as a fallback.
func (r *Reader) parseHTML(data []byte) (*models.Blob, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reader: parse html: %w", err)
	}

	containers := findContainers(doc, isMessageContainer)
	if len(containers) == 0 {
		containers = findContainers(doc, func(n *html.Node) bool {
			return n.Type == html.ElementNode && n.Data == "article"
		})
	}

	var (
		sb       strings.Builder
		messages []models.Message
	)
	for _, c := range containers {
		role := attrValue(c, "data-message-author")
		if role == "" {
			role = descendantText(c, "speaker", "author", "name")
		}
		ts := descendantText(c, "timestamp", "time")

		// Metadata descendants are not part of the message body.
		text := strings.TrimSpace(nodeTextExcluding(c, "timestamp", "time", "speaker", "author", "name"))
		if text == "" {
			continue
		}
		messages = append(messages, models.Message{Role: role, Text: text, Timestamp: ts})

		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		if r.opts.RoleHeaders && role != "" {
			sb.WriteString(role)
			sb.WriteString(":\n")
		}
		sb.WriteString(text)
	}

	return &models.Blob{Text: sb.String(), Kind: "html", Messages: messages}, nil
}

func isMessageContainer(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if attrValue(n, "data-message-author") != "" {
		return true
	}
	return hasClass(n, "message")
}

// findContainers collects matching nodes without descending into a match,
// so nested candidates do not produce duplicate messages.
func findContainers(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attrValue(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// descendantText returns the text of the first descendant carrying any of
// the given class names.
func descendantText(root *html.Node, classes ...string) string {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n != root && n.Type == html.ElementNode {
			for _, cls := range classes {
				if hasClass(n, cls) {
					found = n
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	if found == nil {
		return ""
	}
	return strings.TrimSpace(nodeText(found))
}

// nodeTextExcluding concatenates text under root, skipping any element
// subtree carrying one of the given class names.
func nodeTextExcluding(root *html.Node, classes ...string) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n != root && n.Type == html.ElementNode {
			for _, cls := range classes {
				if hasClass(n, cls) {
					return
				}
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return sb.String()
}

// nodeText concatenates every text node under n.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
