package transcript

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(ls ...string) []byte {
	return []byte(strings.Join(ls, "\n"))
}

func TestParse_FiltersTypesAndMalformedLines(t *testing.T) {
	data := lines(
		`{"type":"queue-operation","operation":"enqueue"}`,
		`not json`,
		`{"type":"system","subtype":"init","content":"started"}`,
		`{"type":"user","message":{"role":"user","content":"hello"}}`,
		``,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hi there"}]}}`,
		`{"type":"summary","summary":"x"}`,
	)

	entries := Parse(data)

	require.Len(t, entries, 3)
	assert.Equal(t, TypeSystem, entries[0].Type)
	assert.JSONEq(t, `"started"`, string(entries[0].Content))
	assert.Equal(t, TypeUser, entries[1].Type)
	assert.Equal(t, "hello", entries[1].Message.Content.Text)
	assert.Equal(t, TypeAssistant, entries[2].Type)
}

func TestParse_DropsArtifacts(t *testing.T) {
	tests := []struct {
		name string
		line string
		kept bool
	}{
		{
			name: "artifact text only",
			line: `{"type":"assistant","message":{"content":[{"type":"text","text":"  No response requested.  "}]}}`,
			kept: false,
		},
		{
			name: "empty content",
			line: `{"type":"assistant","message":{"content":[]}}`,
			kept: false,
		},
		{
			name: "missing message",
			line: `{"type":"assistant"}`,
			kept: false,
		},
		{
			name: "artifact text with tool use",
			line: `{"type":"assistant","message":{"content":[{"type":"text","text":"No response requested."},{"type":"tool_use","id":"t1","name":"Bash","input":{}}]}}`,
			kept: true,
		},
		{
			name: "two text blocks",
			line: `{"type":"assistant","message":{"content":[{"type":"text","text":"No response requested."},{"type":"text","text":"more"}]}}`,
			kept: true,
		},
		{
			name: "regular answer",
			line: `{"type":"assistant","message":{"content":[{"type":"text","text":"Normalization wins."}]}}`,
			kept: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := Parse([]byte(tt.line))
			if tt.kept {
				assert.Len(t, entries, 1)
			} else {
				assert.Empty(t, entries)
			}
		})
	}
}

func TestParse_StripsSystemContext(t *testing.T) {
	t.Run("debate mode string content", func(t *testing.T) {
		line := `{"type":"user","message":{"content":"[SYSTEM CONTEXT - 토론 모드]\nrules here\n상대방 주장:   Joins are slow.  "}}`
		entries := Parse([]byte(line))
		require.Len(t, entries, 1)
		assert.Equal(t, "Joins are slow.", entries[0].Message.Content.Text)
	})

	t.Run("verdict mode block content", func(t *testing.T) {
		line := `{"type":"user","message":{"content":[{"type":"text","text":"[SYSTEM CONTEXT - 판결 모드 활성화]\n사용자의 최종 변론: I rest my case."}]}}`
		entries := Parse([]byte(line))
		require.Len(t, entries, 1)
		assert.Equal(t, "I rest my case.", entries[0].Message.Content.Blocks[0].Text)
	})

	t.Run("marker without lead-in is kept", func(t *testing.T) {
		line := `{"type":"user","message":{"content":"[SYSTEM CONTEXT] nothing else"}}`
		entries := Parse([]byte(line))
		require.Len(t, entries, 1)
		assert.Equal(t, "[SYSTEM CONTEXT] nothing else", entries[0].Message.Content.Text)
	})

	t.Run("lead-in without marker is kept", func(t *testing.T) {
		line := `{"type":"user","message":{"content":"상대방 주장: raw"}}`
		entries := Parse([]byte(line))
		require.Len(t, entries, 1)
		assert.Equal(t, "상대방 주장: raw", entries[0].Message.Content.Text)
	})
}

func TestParse_RoundTripsContentShape(t *testing.T) {
	data := lines(
		`{"type":"user","message":{"content":"plain"}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"blocks"}]}}`,
	)
	entries := Parse(data)
	require.Len(t, entries, 2)

	out, err := json.Marshal(entries)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"content":"plain"`)
	assert.Contains(t, string(out), `"content":[{"type":"text","text":"blocks"}]`)
}

func TestParse_KeepsUnmodelledFields(t *testing.T) {
	data := lines(
		`{"type":"user","isMeta":true,"cwd":"/workspace/data","toolUseResult":{"stdout":"ok"},"message":{"role":"user","content":"hi"}}`,
		`{"type":"assistant","message":{"role":"assistant","stop_reason":"end_turn","content":[{"type":"text","text":"hello"}]}}`,
	)
	entries := Parse(data)
	require.Len(t, entries, 2)

	assert.JSONEq(t, `true`, string(entries[0].Extra["isMeta"]))
	assert.JSONEq(t, `{"stdout":"ok"}`, string(entries[0].Extra["toolUseResult"]))
	assert.Nil(t, entries[1].Extra)

	out, err := json.Marshal(entries)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"type":"user","isMeta":true,"cwd":"/workspace/data","toolUseResult":{"stdout":"ok"},"message":{"role":"user","content":"hi"}},
		{"type":"assistant","message":{"role":"assistant","stop_reason":"end_turn","content":[{"type":"text","text":"hello"}]}}
	]`, string(out))
}

func TestParse_LongLinesDoNotHideLaterEntries(t *testing.T) {
	huge := strings.Repeat("x", 33*1024*1024)
	data := lines(
		`{"type":"assistant","message":{"content":[{"type":"text","text":"old answer"}]}}`,
		`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"`+huge+`"}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"new answer"}]}}`,
	)

	entries := Parse(data)

	require.Len(t, entries, 3)
	assert.Equal(t, "new answer", ExtractLastAssistantText(entries))
}

func TestParse_IsDeterministic(t *testing.T) {
	data := lines(
		`{"type":"system","subtype":"init","content":"started"}`,
		`{"type":"user","message":{"content":"[SYSTEM CONTEXT: turn 2]\n상대방 주장: caching wins"}}`,
		`{"type":"user","message":{"content":[{"type":"text","text":"[SYSTEM CONTEXT]\n사용자의 최종 변론: done"}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"No response requested."}]}}`,
		`not json`,
		`{"type":"assistant","cwd":"/w","message":{"content":[{"type":"tool_use","id":"t1","name":"WebSearch","input":{"query":"rest"}}]}}`,
		`{"type":"assistant","message":{"content":"final"}}`,
	)

	first := Parse(data)
	second := Parse(data)

	require.Len(t, first, 5)
	assert.Equal(t, first, second)
	assert.Equal(t, "caching wins", first[1].Message.Content.Text)
	assert.Equal(t, "done", first[2].Message.Content.Blocks[0].Text)
}

func TestExtractLastAssistantText(t *testing.T) {
	t.Run("joins text blocks of the newest answer", func(t *testing.T) {
		entries := Parse(lines(
			`{"type":"assistant","message":{"content":[{"type":"text","text":"old"}]}}`,
			`{"type":"user","message":{"content":"next"}}`,
			`{"type":"assistant","message":{"content":[{"type":"text","text":"first"},{"type":"tool_use","id":"t","name":"Bash","input":{}},{"type":"text","text":"second"}]}}`,
		))
		assert.Equal(t, "first\nsecond", ExtractLastAssistantText(entries))
	})

	t.Run("skips answers without text", func(t *testing.T) {
		entries := Parse(lines(
			`{"type":"assistant","message":{"content":[{"type":"text","text":"usable"}]}}`,
			`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t","name":"Bash","input":{"command":"go test"}}]}}`,
		))
		assert.Equal(t, "usable", ExtractLastAssistantText(entries))
	})

	t.Run("empty when no assistant", func(t *testing.T) {
		entries := Parse([]byte(`{"type":"user","message":{"content":"only me"}}`))
		assert.Equal(t, "", ExtractLastAssistantText(entries))
	})

	t.Run("artifact does not shadow real answer", func(t *testing.T) {
		entries := Parse(lines(
			`{"type":"assistant","message":{"content":[{"type":"text","text":"real"}]}}`,
			`{"type":"assistant","message":{"content":[{"type":"text","text":"No response requested."}]}}`,
		))
		assert.Equal(t, "real", ExtractLastAssistantText(entries))
	})
}

func TestSessionFilePath(t *testing.T) {
	assert.Equal(t, ".claude/projects/-workspace-data/abc.jsonl", SessionFilePath("abc"))
}
