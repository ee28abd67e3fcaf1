// Package sandbox launches debate agents in isolated environments backed by
// persistent volumes.
package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/alienxp03/toron/internal/core"
)

const (
	// WorkspaceDir is where the conversation volume is mounted inside a sandbox.
	WorkspaceDir = "/workspace/data"

	// DefaultTimeout bounds the lifetime of one sandbox.
	DefaultTimeout = 30 * time.Minute

	// DefaultTreeDepth is how deep BuildFileTree descends.
	DefaultTreeDepth = 5
)

// Agent roles in ai-vs-ai debates.
const (
	RoleAgentA = "agent-a"
	RoleAgentB = "agent-b"
)

// RoleForSide returns the agent role that argues for side.
func RoleForSide(side core.Side) string {
	if side == core.SideB {
		return RoleAgentB
	}
	return RoleAgentA
}

// DebateContext is the debate framing handed to the agent through its environment.
type DebateContext struct {
	Topic            string
	UserSide         string
	AgentSide        string
	TurnCount        int
	IsVerdictRequest bool
	Intervention     core.InterventionMode
	AgentRole        string
	AIVsAI           bool
}

// LaunchRequest describes one agent run.
type LaunchRequest struct {
	VolumeID        string
	ConversationID  string
	AttemptID       string
	Content         string
	ResumeSessionID string
	Debate          DebateContext
}

// FileInfo describes a file or directory inside a volume.
type FileInfo struct {
	Name     string     `json:"name"`
	Type     string     `json:"type"` // "file" or "directory"
	Size     int64      `json:"size,omitempty"`
	Path     string     `json:"path"`
	Children []FileInfo `json:"children,omitempty"`
}

// IsDir reports whether the entry is a directory.
func (f FileInfo) IsDir() bool {
	return f.Type == "directory"
}

// Provider creates volumes and runs agents in sandboxes.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// CreateVolume allocates persistent storage for a conversation.
	CreateVolume(ctx context.Context, conversationID string) (string, error)

	// Launch starts an agent detached from the caller and returns the sandbox id.
	// The agent reports completion through the callback URL.
	Launch(ctx context.Context, req LaunchRequest) (string, error)

	// Kill terminates a sandbox. Killing an already-dead sandbox is not an error.
	Kill(ctx context.Context, sandboxID string) error

	// ReadFile reads a file from a volume. Paths are relative to the volume root.
	ReadFile(ctx context.Context, volumeID, path string) ([]byte, error)

	// ListFiles lists one directory level of a volume.
	ListFiles(ctx context.Context, volumeID, path string) ([]FileInfo, error)
}

// Syncer is implemented by providers that can confirm a volume has been
// flushed, so callers need not guess with a sleep.
type Syncer interface {
	SyncVolume(ctx context.Context, volumeID string) error
}

// AgentConfig holds what every launch needs besides the request itself.
type AgentConfig struct {
	BaseURL         string
	AnthropicAPIKey string
}

// CallbackURL returns the status endpoint the agent calls when it finishes.
func CallbackURL(baseURL, conversationID, attemptID string) string {
	u := fmt.Sprintf("%s/api/conversations/%s/status", trimSlash(baseURL), url.PathEscape(conversationID))
	if attemptID != "" {
		u += "?attempt=" + url.QueryEscape(attemptID)
	}
	return u
}

// Environment builds the agent environment for a launch.
func Environment(cfg AgentConfig, req LaunchRequest, workspaceDir string) map[string]string {
	env := map[string]string{
		"WORKSPACE_DIR":     workspaceDir,
		"ANTHROPIC_API_KEY": cfg.AnthropicAPIKey,
		"CALLBACK_URL":      CallbackURL(cfg.BaseURL, req.ConversationID, req.AttemptID),
		"RESUME_SESSION_ID": req.ResumeSessionID,
		"DEBATE_TOPIC":      req.Debate.Topic,
		"DEBATE_USER_SIDE":  req.Debate.UserSide,
		"DEBATE_AGENT_SIDE": req.Debate.AgentSide,
		"DEBATE_TURN":       strconv.Itoa(req.Debate.TurnCount),
		"VERDICT_MODE":      "",
		"INTERVENTION_MODE": string(req.Debate.Intervention),
		"AGENT_ROLE":        req.Debate.AgentRole,
		"AI_VS_AI_MODE":     "",
	}
	if req.Debate.IsVerdictRequest {
		env["VERDICT_MODE"] = "true"
	}
	if req.Debate.AIVsAI {
		env["AI_VS_AI_MODE"] = "true"
	}
	return env
}

// sortedKeys returns env keys in a stable order.
func sortedKeys(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type inputLine struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

// InputFile renders the two-line stdin the agent harness expects: a
// process_start line and a session_message line.
func InputFile(req LaunchRequest) ([]byte, error) {
	start, err := json.Marshal(inputLine{Type: "process_start", SessionID: req.ResumeSessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode process_start: %w", err)
	}
	msg, err := json.Marshal(inputLine{Type: "session_message", Text: req.Content})
	if err != nil {
		return nil, fmt.Errorf("failed to encode session_message: %w", err)
	}

	out := make([]byte, 0, len(start)+len(msg)+2)
	out = append(out, start...)
	out = append(out, '\n')
	out = append(out, msg...)
	out = append(out, '\n')
	return out, nil
}

// BuildFileTree walks a volume up to maxDepth levels below root. Directories
// sort before files, then by name. Unreadable directories yield no children.
func BuildFileTree(ctx context.Context, p Provider, volumeID, root string, maxDepth int) []FileInfo {
	return buildNode(ctx, p, volumeID, root, 0, maxDepth)
}

func buildNode(ctx context.Context, p Provider, volumeID, dir string, depth, maxDepth int) []FileInfo {
	if depth > maxDepth || ctx.Err() != nil {
		return []FileInfo{}
	}

	files, err := p.ListFiles(ctx, volumeID, dir)
	if err != nil {
		return []FileInfo{}
	}

	nodes := make([]FileInfo, 0, len(files))
	for _, f := range files {
		if f.IsDir() {
			f.Children = buildNode(ctx, p, volumeID, f.Path, depth+1, maxDepth)
		}
		nodes = append(nodes, f)
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].IsDir() != nodes[j].IsDir() {
			return nodes[i].IsDir()
		}
		return nodes[i].Name < nodes[j].Name
	})

	return nodes
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
