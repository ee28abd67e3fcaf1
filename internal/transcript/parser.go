package transcript

import (
	"bytes"
	"encoding/json"
	"strings"
)

// The agent harness wraps prompts with this marker and one of the two lead-ins
// below. They are part of the harness contract and must match byte for byte.
const (
	systemContextMarker = "[SYSTEM CONTEXT"
	debateLeadIn        = "상대방 주장: "
	verdictLeadIn       = "사용자의 최종 변론: "
)

// artifactTexts are stop-sequence leftovers that carry no content.
var artifactTexts = map[string]bool{
	"No response requested.": true,
}

// SessionFilePath returns the transcript path of a session relative to the volume root.
func SessionFilePath(sessionID string) string {
	return ".claude/projects/-workspace-data/" + sessionID + ".jsonl"
}

// Parse turns transcript bytes into user, assistant and system entries in file
// order. Malformed lines are skipped; line length is unbounded.
func Parse(data []byte) []Entry {
	entries := []Entry{}

	for rest := data; len(rest) > 0; {
		var line []byte
		line, rest, _ = bytes.Cut(rest, []byte("\n"))
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue
		}

		switch entry.Type {
		case TypeAssistant:
			if isArtifact(&entry) {
				continue
			}
		case TypeUser:
			cleanUserContent(&entry)
		case TypeSystem:
		default:
			continue
		}

		entries = append(entries, entry)
	}

	return entries
}

// isArtifact reports whether an assistant entry is empty or holds only a
// known artifact text and no tool calls.
func isArtifact(entry *Entry) bool {
	if entry.Message == nil || entry.Message.Content.Empty() {
		return true
	}

	content := entry.Message.Content
	if content.IsString {
		return artifactTexts[strings.TrimSpace(content.Text)]
	}

	var texts []string
	for _, b := range content.Blocks {
		switch b.Type {
		case BlockToolUse:
			return false
		case BlockText:
			texts = append(texts, b.Text)
		}
	}

	if len(texts) != 1 {
		return false
	}
	return artifactTexts[strings.TrimSpace(texts[0])]
}

func cleanUserContent(entry *Entry) {
	if entry.Message == nil {
		return
	}

	content := &entry.Message.Content
	if content.IsString {
		if strings.Contains(content.Text, systemContextMarker) {
			content.Text = stripDebateContext(content.Text)
		}
		return
	}

	for i := range content.Blocks {
		b := &content.Blocks[i]
		if b.Type == BlockText && strings.Contains(b.Text, systemContextMarker) {
			b.Text = stripDebateContext(b.Text)
		}
	}
}

// stripDebateContext keeps only what follows the first lead-in.
func stripDebateContext(text string) string {
	for _, leadIn := range []string{debateLeadIn, verdictLeadIn} {
		if idx := strings.Index(text, leadIn); idx >= 0 {
			return strings.TrimSpace(text[idx+len(leadIn):])
		}
	}
	return text
}

// ExtractLastAssistantText returns the text of the most recent assistant entry
// that has any, joining its text blocks with newlines.
func ExtractLastAssistantText(entries []Entry) string {
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		if entry.Type != TypeAssistant || entry.Message == nil {
			continue
		}

		if text := entry.Message.Content.PlainText(); text != "" {
			return text
		}
	}
	return ""
}
