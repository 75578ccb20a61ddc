package extract

import (
	"fmt"
	"strings"

	"github.com/Anirudh7369/UFDR-Agent/internal/models"
	"github.com/Anirudh7369/UFDR-Agent/internal/ufdr"
)

var messageTypes = map[string]string{
	"instantmessage": "instant_message",
	"chat":           "chat",
	"sms":            "sms",
	"mms":            "mms",
}

// MessagesExtractor maps InstantMessage models to Message records,
// retaining all parties and attachments while projecting a primary
// sender/recipient pair.
type MessagesExtractor struct{}

func (MessagesExtractor) Domain() string { return models.DomainMessages }

func (MessagesExtractor) ModelTypes() []string { return []string{"InstantMessage"} }

func (MessagesExtractor) Extract(jobID string, m *ufdr.Model) (models.Message, error) {
	msg := models.Message{
		JobID:              jobID,
		MessageID:          m.ID,
		DeletedState:       m.DeletedState,
		DecodingConfidence: m.DecodingConfidence,
		RawXML:             m.RawXML,
		Snapshot:           m.SnapshotJSON(),
	}

	for _, f := range m.Fields {
		switch f.Name {
		case "Source", "SourceApplication":
			if msg.SourceApp == "" {
				msg.SourceApp = f.Value.Scalar
			}
		case "Body":
			msg.Body = f.Value.Scalar
		case "Type":
			msg.MessageType = mapVocab(messageTypes, f.Value.Scalar)
		case "Platform":
			msg.Platform = f.Value.Scalar
		case "TimeStamp":
			msg.Timestamp, msg.Time = parseTimestamp(f.Value.Scalar)
		case "ThreadId", "ChatId":
			if msg.ThreadID == "" {
				msg.ThreadID = f.Value.Scalar
			}
		case "From":
			for _, child := range structuredModels(f, "Party") {
				p := parseParty(child)
				if p.Identifier == "" {
					continue
				}
				if p.Role == "" {
					p.Role = "From"
				}
				msg.Parties = append(msg.Parties, p)
				if msg.From == nil {
					from := p
					msg.From = &from
				}
			}
		case "To":
			for _, child := range structuredModels(f, "Party") {
				p := parseParty(child)
				if p.Identifier == "" {
					continue
				}
				if p.Role == "" {
					p.Role = "To"
				}
				msg.Parties = append(msg.Parties, p)
				// first To party is the primary recipient
				if msg.To == nil {
					to := p
					msg.To = &to
				}
			}
		case "Attachment", "Attachments":
			for _, child := range structuredModels(f, "Attachment") {
				msg.Attachments = append(msg.Attachments, parseAttachment(child))
			}
		}
	}

	msg.AttachmentCount = len(msg.Attachments)
	msg.HasAttachments = msg.AttachmentCount > 0

	if msg.SourceApp == "" {
		return models.Message{}, fmt.Errorf("%w: message without source application", ErrSkipRecord)
	}

	if msg.MessageID == "" {
		msg.MessageID = synthesizeMessageKey(msg)
		msg.KeySynthesized = true
	}

	return msg, nil
}

// structuredModels returns the child field lists of nested models with the
// given type name under a structured field.
func structuredModels(f ufdr.Field, modelType string) [][]ufdr.Field {
	if f.Value.Kind != ufdr.StructuredValue {
		return nil
	}
	var out [][]ufdr.Field
	for _, child := range f.Value.Children {
		if child.Name == modelType && child.Value.Kind == ufdr.StructuredValue {
			out = append(out, child.Value.Children)
		}
	}
	return out
}

func synthesizeMessageKey(msg models.Message) string {
	parts := []string{msg.SourceApp, millisString(msg.Timestamp)}
	if msg.From != nil {
		parts = append(parts, msg.From.Identifier)
	}
	if msg.To != nil {
		parts = append(parts, msg.To.Identifier)
	}
	return strings.Join(parts, "|")
}
