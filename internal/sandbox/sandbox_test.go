package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alienxp03/toron/internal/core"
)

func TestCallbackURL(t *testing.T) {
	assert.Equal(t,
		"http://localhost:8182/api/conversations/abc/status",
		CallbackURL("http://localhost:8182/", "abc", ""))
	assert.Equal(t,
		"https://toron.dev/api/conversations/abc/status?attempt=a1",
		CallbackURL("https://toron.dev", "abc", "a1"))
}

func TestEnvironment(t *testing.T) {
	cfg := AgentConfig{BaseURL: "http://host", AnthropicAPIKey: "sk-test"}
	req := LaunchRequest{
		ConversationID:  "conv",
		AttemptID:       "att",
		ResumeSessionID: "sess",
		Debate: DebateContext{
			Topic:        "SQL vs NoSQL",
			UserSide:     "SQL",
			AgentSide:    "NoSQL",
			TurnCount:    3,
			Intervention: core.InterventionLosing,
		},
	}

	env := Environment(cfg, req, WorkspaceDir)

	assert.Equal(t, "/workspace/data", env["WORKSPACE_DIR"])
	assert.Equal(t, "sk-test", env["ANTHROPIC_API_KEY"])
	assert.Equal(t, "http://host/api/conversations/conv/status?attempt=att", env["CALLBACK_URL"])
	assert.Equal(t, "sess", env["RESUME_SESSION_ID"])
	assert.Equal(t, "SQL vs NoSQL", env["DEBATE_TOPIC"])
	assert.Equal(t, "SQL", env["DEBATE_USER_SIDE"])
	assert.Equal(t, "NoSQL", env["DEBATE_AGENT_SIDE"])
	assert.Equal(t, "3", env["DEBATE_TURN"])
	assert.Equal(t, "", env["VERDICT_MODE"])
	assert.Equal(t, "losing", env["INTERVENTION_MODE"])
	assert.Equal(t, "", env["AI_VS_AI_MODE"])

	req.Debate.IsVerdictRequest = true
	req.Debate.AIVsAI = true
	req.Debate.AgentRole = RoleForSide(core.SideB)
	env = Environment(cfg, req, WorkspaceDir)
	assert.Equal(t, "true", env["VERDICT_MODE"])
	assert.Equal(t, "true", env["AI_VS_AI_MODE"])
	assert.Equal(t, "agent-b", env["AGENT_ROLE"])
}

func TestInputFile(t *testing.T) {
	t.Run("fresh session", func(t *testing.T) {
		data, err := InputFile(LaunchRequest{Content: "it's \"quoted\"\nand multi-line"})
		require.NoError(t, err)

		scanner := bufio.NewScanner(bytes.NewReader(data))
		var got []map[string]any
		for scanner.Scan() {
			var m map[string]any
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
			got = append(got, m)
		}

		require.Len(t, got, 2)
		assert.Equal(t, "process_start", got[0]["type"])
		assert.NotContains(t, got[0], "session_id")
		assert.Equal(t, "session_message", got[1]["type"])
		assert.Equal(t, "it's \"quoted\"\nand multi-line", got[1]["text"])
	})

	t.Run("resumed session", func(t *testing.T) {
		data, err := InputFile(LaunchRequest{Content: "next", ResumeSessionID: "s-1"})
		require.NoError(t, err)
		assert.Contains(t, string(data), `{"type":"process_start","session_id":"s-1"}`)
	})
}

type treeProvider struct {
	Provider
	dirs map[string][]FileInfo
}

func (p *treeProvider) ListFiles(ctx context.Context, volumeID, path string) ([]FileInfo, error) {
	files, ok := p.dirs[path]
	if !ok {
		return nil, errors.New("no such dir")
	}
	return append([]FileInfo(nil), files...), nil
}

func TestBuildFileTree(t *testing.T) {
	p := &treeProvider{dirs: map[string][]FileInfo{
		"/": {
			{Name: "z.md", Type: "file", Path: "/z.md"},
			{Name: "src", Type: "directory", Path: "/src"},
			{Name: "a.txt", Type: "file", Path: "/a.txt"},
			{Name: "broken", Type: "directory", Path: "/broken"},
		},
		"/src": {
			{Name: "deep", Type: "directory", Path: "/src/deep"},
		},
		"/src/deep": {
			{Name: "main.go", Type: "file", Path: "/src/deep/main.go"},
		},
	}}

	tree := BuildFileTree(context.Background(), p, "vol", "/", DefaultTreeDepth)

	require.Len(t, tree, 4)
	assert.Equal(t, "broken", tree[0].Name)
	assert.Empty(t, tree[0].Children)
	assert.Equal(t, "src", tree[1].Name)
	assert.Equal(t, "a.txt", tree[2].Name)
	assert.Equal(t, "z.md", tree[3].Name)
	require.Len(t, tree[1].Children, 1)
	require.Len(t, tree[1].Children[0].Children, 1)
	assert.Equal(t, "main.go", tree[1].Children[0].Children[0].Name)

	shallow := BuildFileTree(context.Background(), p, "vol", "/", 1)
	require.Len(t, shallow[1].Children, 1)
	assert.Empty(t, shallow[1].Children[0].Children)
}

func TestSandboxError(t *testing.T) {
	err := &SandboxError{Provider: "remote", Op: "kill", Message: "gone", Err: ErrNotFound}
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "remote sandbox kill: gone: sandbox resource not found", err.Error())

	assert.True(t, isRetriable(&SandboxError{Message: "connection failed"}))
	assert.False(t, isRetriable(&SandboxError{Message: "400 Bad Request"}))
	assert.False(t, isRetriable(errors.New("connection failed")))
}
