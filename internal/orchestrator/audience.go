package orchestrator

import (
	"context"
	"strings"

	"github.com/alienxp03/toron/internal/core"
)

// Intervention thresholds on the audience score.
const (
	losingThreshold  = 3.0
	winningThreshold = -3.0
)

// AudienceScore is positive when the audience leans toward the user and
// negative when it leans toward the agent. Votes count fully, side-taking
// comments count half.
func AudienceScore(votes core.VoteTally, comments core.CommentTally) float64 {
	return float64(votes.User-votes.Agent) + 0.5*float64(comments.User-comments.Agent)
}

// ClassifyIntervention maps an audience score to the hint given to the agent.
func ClassifyIntervention(score float64) core.InterventionMode {
	switch {
	case score >= losingThreshold:
		return core.InterventionLosing
	case score <= winningThreshold:
		return core.InterventionWinning
	default:
		return core.InterventionNone
	}
}

func (o *Orchestrator) intervention(conversationID string) (core.InterventionMode, error) {
	votes, err := o.storage.CountVotes(conversationID)
	if err != nil {
		return core.InterventionNone, err
	}
	comments, err := o.storage.CountCommentSides(conversationID)
	if err != nil {
		return core.InterventionNone, err
	}
	return ClassifyIntervention(AudienceScore(votes, comments)), nil
}

// CastVote records a vote and returns the updated tally.
func (o *Orchestrator) CastVote(ctx context.Context, conversationID string, side core.AudienceSide) (core.VoteTally, error) {
	if !side.Valid() {
		return core.VoteTally{}, core.Invalid("side", "side must be 'user' or 'agent'")
	}
	if _, err := o.requireConversation(conversationID); err != nil {
		return core.VoteTally{}, err
	}

	if err := o.storage.AddVote(&core.Vote{ConversationID: conversationID, Side: side}); err != nil {
		return core.VoteTally{}, err
	}
	o.metrics.RecordVote(string(side))

	return o.storage.CountVotes(conversationID)
}

// CommentRequest is an audience comment or tag-in.
type CommentRequest struct {
	Content  string            `json:"content"`
	Nickname string            `json:"nickname,omitempty"`
	Side     core.AudienceSide `json:"side,omitempty"`
	IsTagIn  bool              `json:"isTagIn,omitempty"`
}

// AddComment stores an audience comment.
func (o *Orchestrator) AddComment(ctx context.Context, conversationID string, req CommentRequest) (*core.Comment, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, core.Invalid("content", "content is required")
	}
	if req.Side != "" && !req.Side.Valid() {
		return nil, core.Invalid("side", "side must be 'user' or 'agent'")
	}
	if _, err := o.requireConversation(conversationID); err != nil {
		return nil, err
	}

	nickname := strings.TrimSpace(req.Nickname)
	if nickname == "" {
		nickname = core.DefaultNickname
	}

	c := &core.Comment{
		ConversationID: conversationID,
		Nickname:       nickname,
		Content:        content,
		Side:           req.Side,
		IsTagIn:        req.IsTagIn,
	}
	if err := o.storage.AddComment(c); err != nil {
		return nil, err
	}
	o.metrics.RecordComment()

	return c, nil
}

// ListComments returns a conversation's comments, oldest first.
func (o *Orchestrator) ListComments(ctx context.Context, conversationID string) ([]*core.Comment, error) {
	comments, err := o.storage.ListComments(conversationID)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []*core.Comment{}
	}
	return comments, nil
}

// SubmitVerdict stores the human's closing verdict of an ai-vs-ai debate.
func (o *Orchestrator) SubmitVerdict(ctx context.Context, conversationID, verdict string) error {
	verdict = strings.TrimSpace(verdict)
	if verdict == "" {
		return core.Invalid("verdict", "verdict content is required")
	}

	conv, err := o.requireConversation(conversationID)
	if err != nil {
		return err
	}
	if !conv.IsAIVsAI() {
		return core.Invalid("verdict", "verdict is only available for AI vs AI debates")
	}

	return o.storage.SetVerdict(conversationID, verdict)
}

func (o *Orchestrator) requireConversation(id string) (*core.Conversation, error) {
	conv, err := o.storage.GetConversation(id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, core.NotFound("conversation", id)
	}
	return conv, nil
}
