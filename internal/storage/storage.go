// Package storage provides persistence for conversations, turns and audience activity.
package storage

import (
	"errors"
	"time"

	"github.com/alienxp03/toron/internal/core"
)

// ErrStaleAttempt is returned when a state transition names an attempt that is no longer current.
var ErrStaleAttempt = errors.New("stale attempt")

// Completion is the terminal state reported for a turn.
type Completion struct {
	Status       core.ConversationStatus
	ErrorMessage string
	SessionID    string // empty keeps the stored session
	AttemptID    string // empty skips the attempt check
}

// Chain describes one ai-vs-ai hand-off, applied atomically.
type Chain struct {
	Turn          *core.DebateTurn
	NextSide      core.Side
	SessionID     string
	AttemptID     string // attempt that just finished; empty skips the check
	NextAttemptID string // attempt of the agent about to be launched
	CommentLimit  int
}

// Storage defines the interface for debate persistence.
type Storage interface {
	// Initialize sets up the storage (creates tables, etc.)
	Initialize() error

	// Close closes the storage connection.
	Close() error

	// Conversation operations
	CreateConversation(c *core.Conversation) error
	GetConversation(id string) (*core.Conversation, error)
	SetVolume(id, volumeID string) error
	SetVerdict(id, verdict string) error
	ListConversations(limit, offset int) ([]*core.ConversationSummary, error)
	ListGallery(limit int) ([]*core.GalleryEntry, error)
	DeleteConversations(ids []string) (int, error)

	// Turn lifecycle
	ClaimTurn(id, attemptID string) (*core.Conversation, error)
	RecordLaunch(id, sandboxID, attemptID string) error
	MarkFailed(id, message string) error
	MarkPromptSurfaced(id string, at time.Time) error
	CompleteTurn(id string, c Completion) error
	ChainTurn(id string, ch Chain) (*core.Conversation, []*core.Comment, error)

	// Debate turns
	ListTurns(conversationID string) ([]*core.DebateTurn, error)

	// Audience
	AddVote(v *core.Vote) error
	CountVotes(conversationID string) (core.VoteTally, error)
	AddComment(c *core.Comment) error
	ListComments(conversationID string) ([]*core.Comment, error)
	CommentsSince(conversationID string, since *time.Time, limit int) ([]*core.Comment, error)
	CountCommentSides(conversationID string) (core.CommentTally, error)
}
