// Package export handles exporting debates to various formats.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/alienxp03/toron/internal/core"
	"github.com/alienxp03/toron/internal/orchestrator"
	"github.com/alienxp03/toron/internal/persona"
	"github.com/alienxp03/toron/internal/transcript"
)

// Format represents an export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
	FormatJSON     Format = "json"
)

// Exporter defines the interface for exporting debates.
type Exporter interface {
	Export(doc *Document, w io.Writer) error
	FileExtension() string
	ContentType() string
}

// GetExporter returns an exporter for the given format.
func GetExporter(format Format) (Exporter, error) {
	switch format {
	case FormatMarkdown, "md":
		return &MarkdownExporter{}, nil
	case FormatPDF:
		return &PDFExporter{}, nil
	case FormatJSON:
		return &JSONExporter{}, nil
	default:
		return nil, core.Invalid("format", fmt.Sprintf("unsupported export format: %s", format))
	}
}

// Speech is one argument in the exported debate.
type Speech struct {
	Number    int       `json:"number"`
	Speaker   string    `json:"speaker"`
	Stance    string    `json:"stance,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
}

// Document is the export-ready form of a conversation.
type Document struct {
	Conversation *core.Conversation `json:"conversation"`
	Speeches     []Speech           `json:"speeches"`
	Votes        core.VoteTally     `json:"votes"`
	Comments     []*core.Comment    `json:"comments"`
}

// NewDocument flattens a conversation view. AI vs AI debates are exported
// from their persisted turns, user vs AI debates from the transcript.
func NewDocument(view *orchestrator.ConversationView) *Document {
	doc := &Document{
		Conversation: view.Conversation,
		Votes:        view.Votes,
		Comments:     view.Comments,
		Speeches:     []Speech{},
	}
	if doc.Comments == nil {
		doc.Comments = []*core.Comment{}
	}

	if view.IsAIVsAI() {
		for _, t := range view.Turns {
			p := persona.ForSide(t.Side)
			doc.Speeches = append(doc.Speeches, Speech{
				Number:    t.TurnNumber,
				Speaker:   p.Emoji + " " + t.Persona,
				Stance:    t.SideLabel,
				Content:   t.Content,
				CreatedAt: t.CreatedAt,
			})
		}
		return doc
	}

	for _, e := range view.Messages {
		if e.Message == nil || (e.Type != transcript.TypeUser && e.Type != transcript.TypeAssistant) {
			continue
		}
		text := strings.TrimSpace(e.Message.Content.PlainText())
		if text == "" {
			continue
		}

		s := Speech{Number: len(doc.Speeches) + 1, Content: text}
		if e.Type == transcript.TypeUser {
			s.Speaker = "You"
			s.Stance = view.UserSide
		} else {
			s.Speaker = "AI"
			s.Stance = view.AgentSide
		}
		if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
			s.CreatedAt = ts
		}
		doc.Speeches = append(doc.Speeches, s)
	}
	return doc
}

// Title returns the topic, or a generic title for untitled conversations.
func (d *Document) Title() string {
	if d.Conversation.DebateTopic != "" {
		return d.Conversation.DebateTopic
	}
	return "Untitled debate"
}

// GenerateFilename creates a filename for the export.
func GenerateFilename(conv *core.Conversation, ext string) string {
	// Sanitize topic for filename
	topic := conv.DebateTopic
	if topic == "" {
		topic = core.ShortID(conv.ID)
	}
	if len(topic) > 50 {
		topic = topic[:50]
	}

	// Replace unsafe characters
	replacer := strings.NewReplacer(
		" ", "_",
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "",
		"?", "",
		"\"", "",
		"<", "",
		">", "",
		"|", "",
	)
	topic = replacer.Replace(topic)

	timestamp := conv.CreatedAt.Format("20060102")
	return fmt.Sprintf("debate_%s_%s.%s", timestamp, topic, ext)
}

// Helper to format the mode for humans
func formatMode(mode core.DebateMode) string {
	if mode == core.ModeAIVsAI {
		return "AI vs AI"
	}
	return "User vs AI"
}

// Helper to format duration
func formatDuration(start, end time.Time) string {
	d := end.Sub(start)
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	return fmt.Sprintf("%.1f hours", d.Hours())
}

func finished(conv *core.Conversation) bool {
	return conv.Status.Terminal()
}
