// Package orchestrator drives debate turns: it launches sandboxed agents,
// reconciles their completion callbacks and chains ai-vs-ai turns.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alienxp03/toron/internal/core"
	"github.com/alienxp03/toron/internal/metrics"
	"github.com/alienxp03/toron/internal/sandbox"
	"github.com/alienxp03/toron/internal/storage"
)

// Config tunes the orchestrator.
type Config struct {
	// MaxTurns applies to new conversations whose metadata sets no limit.
	MaxTurns int

	// ChainReadDelay is waited before reading a finished transcript when the
	// provider cannot confirm the volume is flushed.
	ChainReadDelay time.Duration

	// SettleDelay is waited before killing a finished sandbox, same fallback.
	SettleDelay time.Duration

	// CommentWindow caps audience comments appended to a user-vs-ai prompt.
	CommentWindow int

	// ChainCommentLimit caps comments handed to the next ai-vs-ai speaker.
	ChainCommentLimit int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		MaxTurns:          core.DefaultMaxTurns,
		ChainReadDelay:    2 * time.Second,
		SettleDelay:       3 * time.Second,
		CommentWindow:     10,
		ChainCommentLimit: 5,
	}
}

// Orchestrator owns the turn state machine of every conversation.
type Orchestrator struct {
	storage  storage.Storage
	provider sandbox.Provider
	cfg      Config
	metrics  *metrics.Metrics
}

// New creates an orchestrator.
func New(store storage.Storage, provider sandbox.Provider, cfg Config) *Orchestrator {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = core.DefaultMaxTurns
	}
	if cfg.CommentWindow <= 0 {
		cfg.CommentWindow = 10
	}
	if cfg.ChainCommentLimit <= 0 {
		cfg.ChainCommentLimit = 5
	}
	return &Orchestrator{
		storage:  store,
		provider: provider,
		cfg:      cfg,
		metrics:  metrics.NewMetrics(),
	}
}

// ProviderName returns the sandbox provider in use.
func (o *Orchestrator) ProviderName() string {
	return o.provider.Name()
}

// SubmitRequest is a message from the human side of a debate.
type SubmitRequest struct {
	ConversationID   string               `json:"conversationId,omitempty"`
	Content          string               `json:"content"`
	Metadata         *core.DebateMetadata `json:"debateMetadata,omitempty"`
	IsVerdictRequest bool                 `json:"isVerdictRequest,omitempty"`
}

// SubmitResponse acknowledges a launched turn.
type SubmitResponse struct {
	ConversationID string                  `json:"conversationId"`
	Status         core.ConversationStatus `json:"status"`
}

// SubmitMessage starts a turn, creating the conversation first when no id is given.
func (o *Orchestrator) SubmitMessage(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, core.Invalid("content", "message content is required")
	}

	isNew := req.ConversationID == ""

	var conv *core.Conversation
	var err error
	if isNew {
		conv, err = o.createConversation(req.Metadata)
	} else {
		conv, err = o.storage.GetConversation(req.ConversationID)
		if err == nil && conv == nil {
			err = core.NotFound("conversation", req.ConversationID)
		}
	}
	if err != nil {
		return nil, err
	}

	attemptID := core.GenerateID()
	conv, err = o.storage.ClaimTurn(conv.ID, attemptID)
	if err != nil {
		return nil, err
	}

	log := slog.With("conversation_id", conv.ID, "turn", conv.TurnCount)
	log.Info("Turn claimed", "mode", conv.DebateMode, "new", isNew)

	if conv.VolumeID == "" {
		volumeID, err := o.provider.CreateVolume(ctx, conv.ID)
		if err != nil {
			o.fail(conv.ID, err)
			return nil, fmt.Errorf("failed to create volume: %w", err)
		}
		if err := o.storage.SetVolume(conv.ID, volumeID); err != nil {
			o.fail(conv.ID, err)
			return nil, err
		}
		conv.VolumeID = volumeID
	}

	content := req.Content
	var surfaced []*core.Comment
	intervention := core.InterventionNone

	if !isNew && !conv.IsAIVsAI() {
		surfaced, err = o.storage.CommentsSince(conv.ID, conv.LastPromptAt, o.cfg.CommentWindow)
		if err != nil {
			o.fail(conv.ID, err)
			return nil, err
		}
		if len(surfaced) > 0 {
			block, err := renderAudienceBlock(conv, surfaced)
			if err != nil {
				o.fail(conv.ID, err)
				return nil, err
			}
			content += "\n\n" + block
		}

		if conv.TurnCount > 1 {
			intervention, err = o.intervention(conv.ID)
			if err != nil {
				o.fail(conv.ID, err)
				return nil, err
			}
		}
	}

	launch := sandbox.LaunchRequest{
		AttemptID: attemptID,
		Content:   content,
		Debate: sandbox.DebateContext{
			Topic:            conv.DebateTopic,
			UserSide:         conv.UserSide,
			AgentSide:        conv.AgentSide,
			TurnCount:        conv.TurnCount,
			IsVerdictRequest: req.IsVerdictRequest,
			Intervention:     intervention,
		},
	}
	if conv.IsAIVsAI() {
		side := conv.CurrentSide
		if side == "" {
			side = core.SideA
		}
		launch.Debate.AgentRole = sandbox.RoleForSide(side)
		launch.Debate.AIVsAI = true
	} else {
		launch.ResumeSessionID = conv.SessionID
	}

	if _, err := o.launch(ctx, conv, launch); err != nil {
		o.fail(conv.ID, err)
		return nil, fmt.Errorf("failed to launch agent: %w", err)
	}

	if len(surfaced) > 0 {
		last := surfaced[len(surfaced)-1].CreatedAt
		if err := o.storage.MarkPromptSurfaced(conv.ID, last); err != nil {
			log.Warn("Failed to advance comment watermark", "error", err)
		}
	}

	return &SubmitResponse{ConversationID: conv.ID, Status: core.StatusRunning}, nil
}

func (o *Orchestrator) createConversation(md *core.DebateMetadata) (*core.Conversation, error) {
	if md == nil {
		md = &core.DebateMetadata{}
	}

	maxTurns := md.MaxTurns
	if maxTurns <= 0 {
		maxTurns = o.cfg.MaxTurns
	}

	conv := &core.Conversation{
		ID:          core.GenerateID(),
		Status:      core.StatusIdle,
		DebateTopic: strings.TrimSpace(md.Topic),
		UserSide:    strings.TrimSpace(md.UserSide),
		AgentSide:   strings.TrimSpace(md.AgentSide),
		DebateMode:  core.ParseDebateMode(md.DebateMode),
		MaxTurns:    maxTurns,
	}
	if conv.IsAIVsAI() {
		conv.CurrentSide = core.SideA
	}

	if err := o.storage.CreateConversation(conv); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	slog.Info("Created conversation", "conversation_id", conv.ID, "mode", conv.DebateMode, "max_turns", conv.MaxTurns)
	return conv, nil
}

// launch starts an agent for an attempt already stored on the conversation
// and records its sandbox.
func (o *Orchestrator) launch(ctx context.Context, conv *core.Conversation, req sandbox.LaunchRequest) (string, error) {
	req.VolumeID = conv.VolumeID
	req.ConversationID = conv.ID

	start := time.Now()
	sandboxID, err := o.provider.Launch(ctx, req)
	o.metrics.RecordLaunch(string(conv.DebateMode), o.provider.Name(), time.Since(start).Seconds(), err)
	if err != nil {
		return "", err
	}

	err = o.storage.RecordLaunch(conv.ID, sandboxID, req.AttemptID)
	if errors.Is(err, storage.ErrStaleAttempt) {
		// The agent already reported back, nobody else will reap its sandbox.
		slog.Info("Agent finished before its launch was recorded", "conversation_id", conv.ID, "sandbox_id", sandboxID)
		o.kill(ctx, sandboxID)
		return sandboxID, nil
	}
	if err != nil {
		o.kill(ctx, sandboxID)
		return "", err
	}

	slog.Info("Agent launched",
		"conversation_id", conv.ID,
		"sandbox_id", sandboxID,
		"turn", req.Debate.TurnCount,
		"role", req.Debate.AgentRole,
	)
	return sandboxID, nil
}

// fail moves a conversation into the error state after a failed turn start.
func (o *Orchestrator) fail(id string, cause error) {
	if err := o.storage.MarkFailed(id, cause.Error()); err != nil {
		slog.Error("Failed to mark conversation failed", "conversation_id", id, "error", err)
	}
}

// kill terminates a sandbox, swallowing errors.
func (o *Orchestrator) kill(ctx context.Context, sandboxID string) {
	if sandboxID == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := o.provider.Kill(ctx, sandboxID); err != nil {
		o.metrics.RecordKillFailure()
		slog.Warn("Failed to kill sandbox", "sandbox_id", sandboxID, "error", err)
	}
}

// settle waits until writes to the volume are visible, by asking the provider
// when it can tell and by sleeping for fallback otherwise.
func (o *Orchestrator) settle(ctx context.Context, volumeID string, fallback time.Duration) {
	if s, ok := o.provider.(sandbox.Syncer); ok && volumeID != "" {
		err := s.SyncVolume(ctx, volumeID)
		if err == nil {
			return
		}
		slog.Warn("Volume sync failed, falling back to delay", "volume_id", volumeID, "error", err)
	}

	if fallback <= 0 {
		return
	}
	t := time.NewTimer(fallback)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
