package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/alienxp03/toron/internal/core"
)

// MaxLogSize caps each agent log file (10MB).
const MaxLogSize = 10 * 1024 * 1024

// LocalConfig configures the local process provider.
type LocalConfig struct {
	Root    string        // holds volumes/ and sandboxes/
	Command string        // agent harness executable
	Args    []string      // extra arguments for the harness
	Timeout time.Duration // per-sandbox lifetime
}

// LocalProvider runs the agent harness as a local child process with a
// directory standing in for the volume. It is meant for development and tests.
type LocalProvider struct {
	agent   AgentConfig
	root    string
	command string
	args    []string
	timeout time.Duration

	mu    sync.Mutex
	procs map[string]*localProcess
}

type localProcess struct {
	cmd   *exec.Cmd
	timer *time.Timer
	done  chan struct{}
}

// NewLocalProvider creates the provider and its root directories.
func NewLocalProvider(cfg LocalConfig, agent AgentConfig) (*LocalProvider, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("local sandbox root is required")
	}
	if cfg.Command == "" {
		return nil, fmt.Errorf("local sandbox command is required")
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	for _, dir := range []string{"volumes", "sandboxes"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			return nil, fmt.Errorf("failed to create sandbox directory: %w", err)
		}
	}

	return &LocalProvider{
		agent:   agent,
		root:    root,
		command: cfg.Command,
		args:    cfg.Args,
		timeout: timeout,
		procs:   make(map[string]*localProcess),
	}, nil
}

// Name returns the provider identifier.
func (p *LocalProvider) Name() string {
	return "local"
}

// CreateVolume creates a directory for the conversation.
func (p *LocalProvider) CreateVolume(ctx context.Context, conversationID string) (string, error) {
	volumeID := "vol-" + core.GenerateID()
	if err := os.MkdirAll(filepath.Join(p.root, "volumes", volumeID), 0755); err != nil {
		return "", p.fail("create volume", "failed to create volume directory", err)
	}

	slog.Debug("Created local volume", "conversation_id", conversationID, "volume_id", volumeID)
	return volumeID, nil
}

// Launch starts the harness detached from ctx. Stdin is the rendered input
// file, stdout and stderr are appended to size-capped logs.
func (p *LocalProvider) Launch(ctx context.Context, req LaunchRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	volumeDir, err := p.volumeDir(req.VolumeID)
	if err != nil {
		return "", err
	}

	if _, err := exec.LookPath(p.command); err != nil {
		return "", p.fail("launch", fmt.Sprintf("executable '%s' not found in PATH", p.command), err)
	}

	sandboxID := "sbx-" + core.GenerateID()
	runDir := filepath.Join(p.root, "sandboxes", sandboxID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", p.fail("launch", "failed to create run directory", err)
	}

	input, err := InputFile(req)
	if err != nil {
		return "", p.fail("launch", "failed to render input", err)
	}
	inputPath := filepath.Join(runDir, "agent_input.txt")
	if err := os.WriteFile(inputPath, input, 0600); err != nil {
		return "", p.fail("launch", "failed to write input file", err)
	}

	stdin, err := os.Open(inputPath)
	if err != nil {
		return "", p.fail("launch", "failed to open input file", err)
	}
	stdout, err := openLog(filepath.Join(runDir, "agent_stdout.log"))
	if err != nil {
		stdin.Close()
		return "", p.fail("launch", "failed to open stdout log", err)
	}
	stderr, err := openLog(filepath.Join(runDir, "agent_stderr.log"))
	if err != nil {
		stdin.Close()
		stdout.Close()
		return "", p.fail("launch", "failed to open stderr log", err)
	}
	closeAll := func() {
		stdin.Close()
		stdout.Close()
		stderr.Close()
	}

	env := Environment(p.agent, req, volumeDir)
	env["CLAUDE_CONFIG_DIR"] = filepath.Join(volumeDir, ".claude")

	cmd := exec.Command(p.command, p.args...)
	cmd.Dir = volumeDir
	cmd.Env = os.Environ()
	for _, k := range sortedKeys(env) {
		cmd.Env = append(cmd.Env, k+"="+env[k])
	}
	cmd.Stdin = stdin
	cmd.Stdout = newLimitedWriter(stdout, MaxLogSize)
	cmd.Stderr = newLimitedWriter(stderr, MaxLogSize)
	cmd.WaitDelay = 5 * time.Second
	// Harnesses fork the real agent, so the whole group has to die together.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		closeAll()
		return "", p.fail("launch", "failed to start agent", err)
	}

	proc := &localProcess{cmd: cmd, done: make(chan struct{})}
	proc.timer = time.AfterFunc(p.timeout, func() {
		slog.Warn("Local sandbox timed out", "sandbox_id", sandboxID, "timeout", p.timeout)
		_ = killGroup(cmd)
	})

	p.mu.Lock()
	p.procs[sandboxID] = proc
	p.mu.Unlock()

	go func() {
		err := cmd.Wait()
		proc.timer.Stop()
		closeAll()

		p.mu.Lock()
		delete(p.procs, sandboxID)
		p.mu.Unlock()
		close(proc.done)

		if err != nil {
			slog.Debug("Local sandbox exited", "sandbox_id", sandboxID, "error", err)
			return
		}
		slog.Debug("Local sandbox exited", "sandbox_id", sandboxID)
	}()

	slog.Info("Launched local sandbox",
		"conversation_id", req.ConversationID,
		"sandbox_id", sandboxID,
		"pid", cmd.Process.Pid,
	)

	return sandboxID, nil
}

// Kill terminates the process if it is still running.
func (p *LocalProvider) Kill(ctx context.Context, sandboxID string) error {
	p.mu.Lock()
	proc, ok := p.procs[sandboxID]
	p.mu.Unlock()
	if !ok {
		return nil
	}

	if err := killGroup(proc.cmd); err != nil {
		return p.fail("kill", "failed to kill agent", err)
	}

	select {
	case <-proc.done:
	case <-ctx.Done():
	}
	return nil
}

// ReadFile reads a file below the volume root.
func (p *LocalProvider) ReadFile(ctx context.Context, volumeID, path string) ([]byte, error) {
	volumeDir, err := p.volumeDir(volumeID)
	if err != nil {
		return nil, err
	}

	full, err := securejoin.SecureJoin(volumeDir, path)
	if err != nil {
		return nil, p.fail("read file", "invalid path", err)
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, p.fail("read file", path, fmt.Errorf("%w: %v", ErrNotFound, err))
	}
	if err != nil {
		return nil, p.fail("read file", path, err)
	}
	return data, nil
}

// ListFiles lists one directory of a volume. Returned paths are rooted at "/".
func (p *LocalProvider) ListFiles(ctx context.Context, volumeID, path string) ([]FileInfo, error) {
	volumeDir, err := p.volumeDir(volumeID)
	if err != nil {
		return nil, err
	}

	full, err := securejoin.SecureJoin(volumeDir, path)
	if err != nil {
		return nil, p.fail("list files", "invalid path", err)
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, p.fail("list files", path, err)
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		rel, err := filepath.Rel(volumeDir, filepath.Join(full, e.Name()))
		if err != nil {
			continue
		}
		f := FileInfo{
			Name: e.Name(),
			Type: "file",
			Path: "/" + filepath.ToSlash(rel),
		}
		if e.IsDir() {
			f.Type = "directory"
		} else if info, err := e.Info(); err == nil {
			f.Size = info.Size()
		}
		files = append(files, f)
	}
	return files, nil
}

// SyncVolume is a no-op: local writes are visible as soon as they land.
func (p *LocalProvider) SyncVolume(ctx context.Context, volumeID string) error {
	_, err := p.volumeDir(volumeID)
	return err
}

// Close kills every running agent.
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	ids := make([]string, 0, len(p.procs))
	for id := range p.procs {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, id := range ids {
		if err := p.Kill(ctx, id); err != nil {
			slog.Warn("Failed to kill local sandbox", "sandbox_id", id, "error", err)
		}
	}
	return nil
}

func (p *LocalProvider) volumeDir(volumeID string) (string, error) {
	if volumeID == "" || strings.ContainsAny(volumeID, `/\`) || volumeID == "." || volumeID == ".." {
		return "", p.fail("resolve volume", "invalid volume id", ErrNotFound)
	}

	dir := filepath.Join(p.root, "volumes", volumeID)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", p.fail("resolve volume", volumeID, ErrNotFound)
	}
	return dir, nil
}

func (p *LocalProvider) fail(op, message string, err error) error {
	return &SandboxError{Provider: p.Name(), Op: op, Message: message, Err: err}
}

// killGroup sends SIGKILL to the process group led by cmd.
func killGroup(cmd *exec.Cmd) error {
	err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func openLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// limitedWriter wraps an io.Writer and limits total bytes written.
type limitedWriter struct {
	w       io.Writer
	n       int64
	limit   int64
	limited bool
}

func newLimitedWriter(w io.Writer, limit int64) *limitedWriter {
	return &limitedWriter{w: w, limit: limit}
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	total := len(p)
	if l.n >= l.limit {
		l.limited = true
		return total, nil // Discard, but don't error
	}

	remaining := l.limit - l.n
	if int64(len(p)) > remaining {
		p = p[:remaining]
		l.limited = true
	}

	n, err := l.w.Write(p)
	l.n += int64(n)
	if err != nil {
		return n, err
	}
	return total, nil
}
