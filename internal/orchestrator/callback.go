package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alienxp03/toron/internal/core"
	"github.com/alienxp03/toron/internal/persona"
	"github.com/alienxp03/toron/internal/sandbox"
	"github.com/alienxp03/toron/internal/storage"
	"github.com/alienxp03/toron/internal/transcript"
)

// TurnResult is what an agent reports when it finishes.
type TurnResult struct {
	ConversationID string                  `json:"-"`
	AttemptID      string                  `json:"-"`
	Status         core.ConversationStatus `json:"status"`
	SessionID      string                  `json:"sessionId,omitempty"`
	ErrorMessage   string                  `json:"errorMessage,omitempty"`
}

// TurnOutcome tells the caller what the callback led to.
type TurnOutcome struct {
	Chained  bool      `json:"aiVsAiChained,omitempty"`
	NextSide core.Side `json:"nextSide,omitempty"`
	Ignored  bool      `json:"ignored,omitempty"`
}

var errNoResponse = errors.New("transcript has no assistant text")

// OnTurnComplete reconciles an agent's completion callback. In ai-vs-ai
// debates with turns left it hands the debate to the other side without
// ever exposing a completed status; otherwise it finishes the turn.
func (o *Orchestrator) OnTurnComplete(ctx context.Context, res TurnResult) (*TurnOutcome, error) {
	if !res.Status.Terminal() {
		return nil, core.Invalid("status", "status must be completed or error")
	}

	conv, err := o.storage.GetConversation(res.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, core.NotFound("conversation", res.ConversationID)
	}

	log := slog.With("conversation_id", conv.ID, "turn", conv.TurnCount, "status", res.Status)

	if res.AttemptID != "" && res.AttemptID != conv.AttemptID {
		log.Info("Ignoring callback for a stale attempt", "attempt_id", res.AttemptID)
		o.metrics.RecordCallback(string(res.Status), "ignored")
		return &TurnOutcome{Ignored: true}, nil
	}

	if o.shouldChain(conv, res) {
		outcome, committed, err := o.chain(ctx, conv, res)
		switch {
		case err == nil:
			o.metrics.RecordCallback(string(res.Status), "chained")
			o.metrics.RecordChain()
			return outcome, nil
		case errors.Is(err, storage.ErrStaleAttempt):
			log.Info("Callback lost the chaining race, ignoring")
			o.metrics.RecordCallback(string(res.Status), "ignored")
			return &TurnOutcome{Ignored: true}, nil
		default:
			log.Warn("AI vs AI chaining failed, completing normally", "error", err)
			if committed {
				// The hand-off cleared the finished attempt, so the
				// completion below must not check it again.
				res.AttemptID = ""
				conv.SandboxID = ""
			}
		}
	}

	err = o.storage.CompleteTurn(conv.ID, storage.Completion{
		Status:       res.Status,
		ErrorMessage: res.ErrorMessage,
		SessionID:    res.SessionID,
		AttemptID:    res.AttemptID,
	})
	if errors.Is(err, storage.ErrStaleAttempt) {
		log.Info("Callback raced with a newer attempt, ignoring")
		o.metrics.RecordCallback(string(res.Status), "ignored")
		return &TurnOutcome{Ignored: true}, nil
	}
	if err != nil {
		return nil, err
	}

	o.metrics.RecordCallback(string(res.Status), "completed")
	log.Info("Turn completed", "session_id", res.SessionID)

	if conv.SandboxID != "" {
		o.settle(ctx, conv.VolumeID, o.cfg.SettleDelay)
		o.kill(ctx, conv.SandboxID)
	}

	return &TurnOutcome{}, nil
}

func (o *Orchestrator) shouldChain(conv *core.Conversation, res TurnResult) bool {
	return conv.IsAIVsAI() &&
		res.Status == core.StatusCompleted &&
		conv.TurnCount < conv.MaxTurns &&
		conv.VolumeID != "" &&
		res.SessionID != ""
}

// chain records the finished ai-vs-ai turn and launches the other side.
// committed reports whether the hand-off reached the store before err.
func (o *Orchestrator) chain(ctx context.Context, conv *core.Conversation, res TurnResult) (outcome *TurnOutcome, committed bool, err error) {
	o.settle(ctx, conv.VolumeID, o.cfg.ChainReadDelay)

	data, err := o.provider.ReadFile(ctx, conv.VolumeID, transcript.SessionFilePath(res.SessionID))
	if err != nil {
		o.metrics.RecordChainFallback("transcript_unreadable")
		return nil, false, fmt.Errorf("failed to read transcript: %w", err)
	}

	response := transcript.ExtractLastAssistantText(transcript.Parse(data))
	if response == "" {
		o.metrics.RecordChainFallback("no_response")
		return nil, false, errNoResponse
	}

	side := conv.CurrentSide
	if side == "" {
		side = core.SideA
	}
	next := side.Next()
	attemptID := core.GenerateID()

	updated, comments, err := o.storage.ChainTurn(conv.ID, storage.Chain{
		Turn: &core.DebateTurn{
			TurnNumber: conv.TurnCount,
			Side:       side,
			SideLabel:  conv.SideLabel(side),
			Persona:    persona.ForSide(side).Name,
			Content:    response,
		},
		NextSide:      next,
		SessionID:     res.SessionID,
		AttemptID:     res.AttemptID,
		NextAttemptID: attemptID,
		CommentLimit:  o.cfg.ChainCommentLimit,
	})
	if err != nil {
		if !errors.Is(err, storage.ErrStaleAttempt) {
			o.metrics.RecordChainFallback("store")
		}
		return nil, false, err
	}

	o.kill(ctx, conv.SandboxID)

	content := response
	if len(comments) > 0 {
		block, err := renderModeratorBlock(comments)
		if err != nil {
			o.metrics.RecordChainFallback("prompt")
			return nil, true, err
		}
		content += "\n\n" + block
	}

	_, err = o.launch(ctx, updated, sandbox.LaunchRequest{
		AttemptID: attemptID,
		Content:   content,
		Debate: sandbox.DebateContext{
			Topic:     updated.DebateTopic,
			UserSide:  updated.SideLabel(side),
			AgentSide: updated.SideLabel(next),
			TurnCount: updated.TurnCount,
			AgentRole: sandbox.RoleForSide(next),
			AIVsAI:    true,
		},
	})
	if err != nil {
		o.metrics.RecordChainFallback("launch")
		return nil, true, fmt.Errorf("failed to launch next side: %w", err)
	}

	slog.Info("Chained AI vs AI turn",
		"conversation_id", conv.ID,
		"finished_side", side,
		"next_side", next,
		"turn", updated.TurnCount,
	)

	return &TurnOutcome{Chained: true, NextSide: next}, true, nil
}
