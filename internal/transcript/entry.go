// Package transcript reads agent session transcripts written as JSON lines.
package transcript

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Entry types kept by the parser.
const (
	TypeUser      = "user"
	TypeAssistant = "assistant"
	TypeSystem    = "system"
)

// Content block types.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Entry is one line of a session transcript. Fields not modelled here
// (isMeta, cwd, toolUseResult, ...) are kept in Extra and written back out.
type Entry struct {
	Type       string          `json:"type"`
	UUID       string          `json:"uuid,omitempty"`
	ParentUUID string          `json:"parentUuid,omitempty"`
	SessionID  string          `json:"sessionId,omitempty"`
	Timestamp  string          `json:"timestamp,omitempty"`
	Subtype    string          `json:"subtype,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"` // system entries
	Message    *Message        `json:"message,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

var entryFields = []string{"type", "uuid", "parentUuid", "sessionId", "timestamp", "subtype", "content", "message"}

func (e *Entry) UnmarshalJSON(data []byte) error {
	type plain Entry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraFields(data, entryFields)
	if err != nil {
		return err
	}
	*e = Entry(p)
	e.Extra = extra
	return nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	out, err := json.Marshal(plain(e))
	if err != nil {
		return nil, err
	}
	return withExtra(out, e.Extra)
}

// Message is the chat message carried by user and assistant entries.
type Message struct {
	ID      string  `json:"id,omitempty"`
	Role    string  `json:"role,omitempty"`
	Model   string  `json:"model,omitempty"`
	Content Content `json:"content"`

	Extra map[string]json.RawMessage `json:"-"`
}

var messageFields = []string{"id", "role", "model", "content"}

func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	extra, err := extraFields(data, messageFields)
	if err != nil {
		return err
	}
	*m = Message(p)
	m.Extra = extra
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	out, err := json.Marshal(plain(m))
	if err != nil {
		return nil, err
	}
	return withExtra(out, m.Extra)
}

// extraFields returns the members of a JSON object not named in known.
func extraFields(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// withExtra adds extra members to an encoded object without overriding any.
func withExtra(out []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return out, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(out, &merged); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

// Content is either a plain string or a list of blocks.
type Content struct {
	Text     string
	Blocks   []Block
	IsString bool
}

// UnmarshalJSON accepts both the string and the block-array form.
func (c *Content) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '"' {
		c.IsString = true
		return json.Unmarshal(trimmed, &c.Text)
	}
	return json.Unmarshal(trimmed, &c.Blocks)
}

// MarshalJSON writes the content back in the form it was read.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.IsString {
		return json.Marshal(c.Text)
	}
	if c.Blocks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Blocks)
}

// Empty reports whether there is nothing in the content.
func (c Content) Empty() bool {
	if c.IsString {
		return c.Text == ""
	}
	return len(c.Blocks) == 0
}

// PlainText returns the string form, or the text blocks joined by newlines.
func (c Content) PlainText() string {
	if c.IsString {
		return c.Text
	}
	var texts []string
	for _, b := range c.Blocks {
		if b.Type == BlockText && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Block is a single content block.
type Block struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ResultText returns the text of a tool_result block. Array results are
// reduced to their text blocks joined by newlines.
func (b Block) ResultText() string {
	raw := bytes.TrimSpace(b.Content)
	if len(raw) == 0 {
		return ""
	}

	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
		return ""
	}

	var parts []Block
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}

	var buf bytes.Buffer
	first := true
	for _, p := range parts {
		if p.Type != BlockText {
			continue
		}
		if !first {
			buf.WriteByte('\n')
		}
		buf.WriteString(p.Text)
		first = false
	}
	return buf.String()
}
