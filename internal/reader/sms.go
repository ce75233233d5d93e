package reader

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/starford/raido/internal/models"
)

const (
	smsIncoming = 1
	smsOutgoing = 2
)

type smsRoot struct {
	XMLName xml.Name     `xml:"smses"`
	SMS     []smsElement `xml:"sms"`
	MMS     []mmsElement `xml:"mms"`
}

type smsElement struct {
	Date         int64  `xml:"date,attr"`
	ReadableDate string `xml:"readable_date,attr"`
	Body         string `xml:"body,attr"`
	Address      string `xml:"address,attr"`
	ContactName  string `xml:"contact_name,attr"`
	Type         int    `xml:"type,attr"`
}

type mmsElement struct {
	Date        int64     `xml:"date,attr"`
	Address     string    `xml:"address,attr"`
	ContactName string    `xml:"contact_name,attr"`
	Type        int       `xml:"msg_box,attr"`
	Parts       []mmsPart `xml:"parts>part"`
}

type mmsPart struct {
	ContentType string `xml:"ct,attr"`
	Text        string `xml:"text,attr"`
}

// parseSMS adapts an SMS-backup XML document into virtual chat messages.
// MMS bodies are reconstructed from their text/plain parts.
func (r *Reader) parseSMS(data []byte) (*models.Blob, error) {
	var root smsRoot
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("reader: parse sms xml: %w", err)
	}

	messages := make([]models.Message, 0, len(root.SMS)+len(root.MMS))
	for _, s := range root.SMS {
		messages = append(messages, smsMessage(s.Date, s.Address, s.ContactName, s.Type, s.Body))
	}
	for _, m := range root.MMS {
		var parts []string
		for _, p := range m.Parts {
			if p.ContentType == "text/plain" && p.Text != "" {
				parts = append(parts, p.Text)
			}
		}
		if len(parts) == 0 {
			continue
		}
		messages = append(messages, smsMessage(m.Date, m.Address, m.ContactName, m.Type, strings.Join(parts, "\n")))
	}

	var sb strings.Builder
	for _, m := range messages {
		if m.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[%s] %s: %s", m.Timestamp, m.Sender, m.Text)
	}

	return &models.Blob{Text: sb.String(), Kind: "sms", Messages: messages}, nil
}

func smsMessage(epochMillis int64, address, contact string, kind int, body string) models.Message {
	peer := contact
	if peer == "" {
		peer = address
	}
	m := models.Message{
		Text:      sanitize([]byte(body)),
		Timestamp: time.UnixMilli(epochMillis).UTC().Format("2006-01-02 15:04:05"),
	}
	if kind == smsOutgoing {
		m.Sender = "Me"
		m.Receiver = peer
	} else {
		m.Sender = peer
		m.Receiver = "Me"
	}
	return m
}
