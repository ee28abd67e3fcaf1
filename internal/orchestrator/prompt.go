package orchestrator

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/alienxp03/toron/internal/core"
)

const audienceTemplate = `[Audience reactions: weave these opinions into the debate. Audience support sways the verdict!]
{{range .}}- {{.Nickname}} {{.Affinity}}{{if .IsTagIn}} (tag-in!){{end}}: "{{.Content}}"
{{end}}`

const moderatorTemplate = `[Moderator & audience comments]
{{range .}}- {{.Nickname}}: "{{.Content}}"
{{end}}`

var (
	audienceTmpl  = template.Must(template.New("audience").Parse(audienceTemplate))
	moderatorTmpl = template.Must(template.New("moderator").Parse(moderatorTemplate))
)

type commentLine struct {
	Nickname string
	Affinity string
	IsTagIn  bool
	Content  string
}

// renderAudienceBlock frames comments for a user-vs-ai prompt, labelling each
// with the side its author supports.
func renderAudienceBlock(conv *core.Conversation, comments []*core.Comment) (string, error) {
	lines := make([]commentLine, 0, len(comments))
	for _, c := range comments {
		lines = append(lines, commentLine{
			Nickname: c.Nickname,
			Affinity: affinity(conv, c.Side),
			IsTagIn:  c.IsTagIn,
			Content:  c.Content,
		})
	}
	return render(audienceTmpl, lines)
}

// renderModeratorBlock frames comments handed to the next ai-vs-ai speaker.
func renderModeratorBlock(comments []*core.Comment) (string, error) {
	lines := make([]commentLine, 0, len(comments))
	for _, c := range comments {
		lines = append(lines, commentLine{Nickname: c.Nickname, Content: c.Content})
	}
	return render(moderatorTmpl, lines)
}

func affinity(conv *core.Conversation, side core.AudienceSide) string {
	switch side {
	case core.AudienceUser:
		return "[" + orDefault(conv.UserSide, "User") + " supporter]"
	case core.AudienceAgent:
		return "[" + orDefault(conv.AgentSide, "AI") + " supporter]"
	default:
		return "[neutral]"
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func render(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
