package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultAPIURL is the hosted sandbox API.
	DefaultAPIURL = "https://api.moru.io"

	// DefaultTemplate is the sandbox image with the agent harness installed.
	DefaultTemplate = "toron-agent"

	// DefaultAgentCommand starts the harness inside the sandbox.
	DefaultAgentCommand = "npx tsx /app/agent.mts"

	commandTimeout = time.Minute
)

// RemoteConfig configures the hosted sandbox provider.
type RemoteConfig struct {
	APIURL       string
	APIKey       string
	Template     string
	AgentCommand string
	Timeout      time.Duration
	MaxRetries   int
	HTTPClient   *http.Client
}

// RemoteProvider talks to a hosted sandbox API over HTTP. Every call made
// during a launch returns quickly; the agent is left running under nohup so
// no connection has to outlive the request that launched it.
type RemoteProvider struct {
	agent      AgentConfig
	apiURL     string
	apiKey     string
	template   string
	command    string
	timeout    time.Duration
	maxRetries int
	client     *http.Client
}

// NewRemoteProvider creates a provider for the hosted sandbox API.
func NewRemoteProvider(cfg RemoteConfig, agent AgentConfig) *RemoteProvider {
	p := &RemoteProvider{
		agent:      agent,
		apiURL:     trimSlash(cfg.APIURL),
		apiKey:     cfg.APIKey,
		template:   cfg.Template,
		command:    cfg.AgentCommand,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		client:     cfg.HTTPClient,
	}
	if p.apiURL == "" {
		p.apiURL = DefaultAPIURL
	}
	if p.template == "" {
		p.template = DefaultTemplate
	}
	if p.command == "" {
		p.command = DefaultAgentCommand
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.maxRetries < 0 {
		p.maxRetries = 0
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 2 * time.Minute}
	}
	return p
}

// Name returns the provider identifier.
func (p *RemoteProvider) Name() string {
	return "remote"
}

// CreateVolume creates a named volume for the conversation.
func (p *RemoteProvider) CreateVolume(ctx context.Context, conversationID string) (string, error) {
	var out struct {
		VolumeID string `json:"volumeId"`
	}
	body := map[string]string{"name": "toron-" + conversationID}
	if err := p.do(ctx, "create volume", http.MethodPost, "/volumes", nil, body, &out); err != nil {
		return "", err
	}
	if out.VolumeID == "" {
		return "", p.fail("create volume", "empty volume id", nil)
	}
	return out.VolumeID, nil
}

// Launch creates a sandbox on the volume and starts the agent detached.
func (p *RemoteProvider) Launch(ctx context.Context, req LaunchRequest) (string, error) {
	var created struct {
		SandboxID string `json:"sandboxId"`
	}
	body := map[string]any{
		"templateId":      p.template,
		"volumeId":        req.VolumeID,
		"volumeMountPath": WorkspaceDir,
		"timeoutMs":       p.timeout.Milliseconds(),
	}
	if err := p.doOnce(ctx, "create sandbox", http.MethodPost, "/sandboxes", nil, body, &created); err != nil {
		return "", err
	}
	sandboxID := created.SandboxID
	if sandboxID == "" {
		return "", p.fail("create sandbox", "empty sandbox id", nil)
	}

	if err := p.prepareAndStart(ctx, sandboxID, req); err != nil {
		if killErr := p.Kill(context.WithoutCancel(ctx), sandboxID); killErr != nil {
			slog.Warn("Failed to kill sandbox after launch error", "sandbox_id", sandboxID, "error", killErr)
		}
		return "", err
	}

	slog.Info("Launched remote sandbox", "conversation_id", req.ConversationID, "sandbox_id", sandboxID)
	return sandboxID, nil
}

func (p *RemoteProvider) prepareAndStart(ctx context.Context, sandboxID string, req LaunchRequest) error {
	// Session transcripts must land on the volume so they survive the sandbox.
	setup := "mkdir -p " + WorkspaceDir + "/.claude && " +
		"cp -a /home/user/.claude/. " + WorkspaceDir + "/.claude/ && " +
		"rm -rf /home/user/.claude && " +
		"ln -sf " + WorkspaceDir + "/.claude /home/user/.claude"
	if err := p.run(ctx, sandboxID, setup, false); err != nil {
		return err
	}

	input, err := InputFile(req)
	if err != nil {
		return p.fail("launch", "failed to render input", err)
	}
	if err := p.run(ctx, sandboxID, "printf '%s' "+shellQuote(string(input))+" > /tmp/agent_input.txt", true); err != nil {
		return err
	}

	return p.run(ctx, sandboxID, launchCommand(p.command, Environment(p.agent, req, WorkspaceDir)), false)
}

// launchCommand renders the detached shell invocation of the harness.
func launchCommand(agentCommand string, env map[string]string) string {
	var assigns []string
	for _, k := range sortedKeys(env) {
		assigns = append(assigns, k+"="+shellQuote(env[k]))
	}

	inner := "cd " + WorkspaceDir + " && " + strings.Join(assigns, " ") + " " + agentCommand +
		" < /tmp/agent_input.txt >> /tmp/agent_stdout.log 2>> /tmp/agent_stderr.log"

	return "nohup bash -c " + shellQuote(inner) + " > /dev/null 2>&1 &"
}

// run executes a short foreground command inside the sandbox. Only commands
// that are safe to repeat should set retry.
func (p *RemoteProvider) run(ctx context.Context, sandboxID, cmd string, retry bool) error {
	var out struct {
		ExitCode int    `json:"exitCode"`
		Stderr   string `json:"stderr"`
	}
	body := map[string]any{"cmd": cmd, "timeoutMs": commandTimeout.Milliseconds()}
	path := "/sandboxes/" + url.PathEscape(sandboxID) + "/commands"
	request := p.doOnce
	if retry {
		request = p.do
	}
	if err := request(ctx, "run command", http.MethodPost, path, nil, body, &out); err != nil {
		return err
	}
	if out.ExitCode != 0 {
		return p.fail("run command", fmt.Sprintf("exit code %d: %s", out.ExitCode, strings.TrimSpace(out.Stderr)), nil)
	}
	return nil
}

// Kill terminates a sandbox. A sandbox that is already gone is not an error.
func (p *RemoteProvider) Kill(ctx context.Context, sandboxID string) error {
	err := p.do(ctx, "kill", http.MethodDelete, "/sandboxes/"+url.PathEscape(sandboxID), nil, nil, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// ReadFile downloads a file from the volume.
func (p *RemoteProvider) ReadFile(ctx context.Context, volumeID, path string) ([]byte, error) {
	var data []byte
	q := url.Values{"path": {absPath(path)}}
	err := p.do(ctx, "read file", http.MethodGet, "/volumes/"+url.PathEscape(volumeID)+"/files/download", q, nil, &data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ListFiles lists one directory of the volume.
func (p *RemoteProvider) ListFiles(ctx context.Context, volumeID, path string) ([]FileInfo, error) {
	var out struct {
		Files []FileInfo `json:"files"`
	}
	q := url.Values{"path": {absPath(path)}}
	if err := p.do(ctx, "list files", http.MethodGet, "/volumes/"+url.PathEscape(volumeID)+"/files", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// do performs an idempotent API call with retries on transient failures.
// A *[]byte out receives the raw body; any other non-nil out is JSON-decoded.
func (p *RemoteProvider) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	return p.call(ctx, p.maxRetries+1, op, method, path, query, body, out)
}

// doOnce performs a call that must not be repeated. A transient failure may
// still have taken effect on the server.
func (p *RemoteProvider) doOnce(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	return p.call(ctx, 1, op, method, path, query, body, out)
}

func (p *RemoteProvider) call(ctx context.Context, tries int, op, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return p.fail(op, "failed to encode request", err)
		}
	}

	endpoint := p.apiURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	attempt := func() (struct{}, error) {
		err := p.send(ctx, op, method, endpoint, payload, out)
		if err != nil && !isRetriable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		if err != nil && tries > 1 {
			slog.Warn("Sandbox API call failed, will retry", "op", op, "error", err)
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(tries)),
	)
	return err
}

func (p *RemoteProvider) send(ctx context.Context, op, method, endpoint string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return p.fail(op, "failed to build request", err)
	}
	req.Header.Set("X-API-Key", p.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return p.fail(op, "connection failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("%s: %s", resp.Status, strings.TrimSpace(string(detail)))
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return p.fail(op, msg, ErrNotFound)
		case resp.StatusCode == http.StatusTooManyRequests:
			return p.fail(op, "too many requests: "+msg, nil)
		case resp.StatusCode >= 500:
			return p.fail(op, "service unavailable: "+msg, nil)
		default:
			return p.fail(op, msg, nil)
		}
	}

	switch v := out.(type) {
	case nil:
		return nil
	case *[]byte:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return p.fail(op, "connection failed while reading body", err)
		}
		*v = data
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return p.fail(op, "failed to decode response", err)
		}
		return nil
	}
}

func (p *RemoteProvider) fail(op, message string, err error) error {
	return &SandboxError{Provider: p.Name(), Op: op, Message: message, Err: err}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// shellQuote wraps s in single quotes for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func absPath(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
