package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/alienxp03/toron/internal/core"
)

// MarkdownExporter exports debates to Markdown format.
type MarkdownExporter struct{}

// Export writes the debate as Markdown.
func (e *MarkdownExporter) Export(doc *Document, w io.Writer) error {
	conv := doc.Conversation
	var sb strings.Builder

	// Title
	sb.WriteString(fmt.Sprintf("# %s\n\n", doc.Title()))

	// Metadata
	sb.WriteString("## Debate Information\n\n")
	sb.WriteString(fmt.Sprintf("- **ID:** `%s`\n", conv.ID))
	sb.WriteString(fmt.Sprintf("- **Mode:** %s\n", formatMode(conv.DebateMode)))
	sb.WriteString(fmt.Sprintf("- **Status:** %s\n", conv.Status))
	sb.WriteString(fmt.Sprintf("- **Turns:** %d / %d\n", conv.TurnCount, conv.MaxTurns))
	sb.WriteString(fmt.Sprintf("- **Created:** %s\n", conv.CreatedAt.Format("January 2, 2006 at 3:04 PM")))
	if finished(conv) {
		sb.WriteString(fmt.Sprintf("- **Duration:** %s\n", formatDuration(conv.CreatedAt, conv.UpdatedAt)))
	}
	sb.WriteString("\n")

	// Stances
	if conv.UserSide != "" || conv.AgentSide != "" {
		sb.WriteString("## Stances\n\n")
		sb.WriteString(fmt.Sprintf("- **%s:** %s\n", firstLabel(conv.IsAIVsAI()), conv.SideLabel(core.SideA)))
		sb.WriteString(fmt.Sprintf("- **%s:** %s\n", secondLabel(conv.IsAIVsAI()), conv.SideLabel(core.SideB)))
		sb.WriteString("\n")
	}

	// Debate Content
	sb.WriteString("## Debate\n\n")

	if len(doc.Speeches) == 0 {
		sb.WriteString("*No turns recorded.*\n\n")
	} else {
		for _, s := range doc.Speeches {
			header := fmt.Sprintf("### Turn %d - %s", s.Number, s.Speaker)
			if s.Stance != "" {
				header += fmt.Sprintf(" (%s)", s.Stance)
			}
			sb.WriteString(header + "\n\n")
			if !s.CreatedAt.IsZero() {
				sb.WriteString(fmt.Sprintf("*%s*\n\n", s.CreatedAt.Format("3:04 PM")))
			}
			sb.WriteString(s.Content)
			sb.WriteString("\n\n---\n\n")
		}
	}

	// Audience
	sb.WriteString("## Audience\n\n")
	sb.WriteString(fmt.Sprintf("- **Votes:** %d for %s, %d for %s\n\n",
		doc.Votes.User, conv.SideLabel(core.SideA), doc.Votes.Agent, conv.SideLabel(core.SideB)))
	for _, c := range doc.Comments {
		tag := ""
		if c.IsTagIn {
			tag = " *(tag-in)*"
		}
		sb.WriteString(fmt.Sprintf("> **%s**%s: %s\n>\n", c.Nickname, tag, c.Content))
	}
	if len(doc.Comments) > 0 {
		sb.WriteString("\n")
	}

	// Verdict
	if conv.UserVerdict != "" {
		sb.WriteString("## Verdict\n\n")
		sb.WriteString(conv.UserVerdict)
		sb.WriteString("\n\n")
	}

	// Footer
	sb.WriteString("---\n\n")
	sb.WriteString("*Exported from toron*\n")

	_, err := w.Write([]byte(sb.String()))
	return err
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return "md"
}

// ContentType returns the MIME type for Markdown.
func (e *MarkdownExporter) ContentType() string {
	return "text/markdown; charset=utf-8"
}

func firstLabel(aiVsAI bool) string {
	if aiVsAI {
		return "Side A"
	}
	return "You"
}

func secondLabel(aiVsAI bool) string {
	if aiVsAI {
		return "Side B"
	}
	return "AI"
}
