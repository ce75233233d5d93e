package recognize

import (
	"strings"

	"github.com/starford/raido/internal/models"
)

// RecognizeMessages adapts per-message records (the SMS path) into synthetic
// Conversation entries. Each non-empty message body becomes one entry; the
// usual classifier policies and intra-file dedup apply.
func (r *Recognizer) RecognizeMessages(path string, msgs []models.Message) []models.Entry {
	seen := make(map[string]struct{})
	entries := make([]models.Entry, 0, len(msgs))
	for _, m := range msgs {
		body := strings.TrimSpace(m.Text)
		if body == "" {
			continue
		}
		if r.dedupe {
			key := string(models.TypeConversation) + "\x00" + strings.ToLower(body)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}

		var date string
		if m.Timestamp != "" {
			date = m.Timestamp
		} else {
			date = deriveDate(body, path)
		}

		cls := r.content.Classify(body)
		entries = append(entries, models.Entry{
			Source:               path,
			Type:                 models.TypeConversation,
			Title:                buildTitle(messageMarker(m), body),
			Date:                 date,
			Text:                 body,
			AmandaRelated:        r.subject.Related(messageMarker(m) + "\n" + body),
			PhoenixCodex:         cls.PhoenixCodex,
			Confidence:           cls.Confidence,
			Category:             cls.Category,
			ClassificationReason: cls.Reason,
		})
	}
	return entries
}

func messageMarker(m models.Message) string {
	switch {
	case m.Sender != "" && m.Sender != "Me":
		return "Message from " + m.Sender
	case m.Receiver != "":
		return "Message to " + m.Receiver
	case m.Role != "":
		return "Message from " + m.Role
	default:
		return "Message"
	}
}
