// Package core contains the core domain types for toron.
package core

import (
	"time"
)

// ConversationStatus represents the externally visible state of a conversation.
type ConversationStatus string

const (
	StatusIdle      ConversationStatus = "idle"
	StatusRunning   ConversationStatus = "running"
	StatusCompleted ConversationStatus = "completed"
	StatusError     ConversationStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s ConversationStatus) Valid() bool {
	switch s {
	case StatusIdle, StatusRunning, StatusCompleted, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s can be reported by an agent callback.
func (s ConversationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// DebateMode selects who argues against whom.
type DebateMode string

const (
	ModeUserVsAI DebateMode = "user-vs-ai"
	ModeAIVsAI   DebateMode = "ai-vs-ai"
)

// ParseDebateMode returns ModeAIVsAI for "ai-vs-ai" and ModeUserVsAI otherwise.
func ParseDebateMode(s string) DebateMode {
	if DebateMode(s) == ModeAIVsAI {
		return ModeAIVsAI
	}
	return ModeUserVsAI
}

// Side identifies which of the two debaters is speaking in ai-vs-ai mode.
type Side string

const (
	SideA Side = "sideA"
	SideB Side = "sideB"
)

// Next returns the other side.
func (s Side) Next() Side {
	if s == SideB {
		return SideA
	}
	return SideB
}

// AudienceSide is the side an audience member supports.
type AudienceSide string

const (
	AudienceUser  AudienceSide = "user"
	AudienceAgent AudienceSide = "agent"
)

// Valid reports whether s is user or agent.
func (s AudienceSide) Valid() bool {
	return s == AudienceUser || s == AudienceAgent
}

// InterventionMode is the hint passed to the agent when the audience leans hard one way.
type InterventionMode string

const (
	InterventionNone    InterventionMode = ""
	InterventionLosing  InterventionMode = "losing"
	InterventionWinning InterventionMode = "winning"
)

// DefaultMaxTurns is used when neither the request nor the config sets a turn limit.
const DefaultMaxTurns = 5

// DefaultNickname is assigned to comments posted without a nickname.
const DefaultNickname = "audience"

// Conversation is one debate session and the single source of truth for its state.
type Conversation struct {
	ID           string             `json:"id"`
	Status       ConversationStatus `json:"status"`
	DebateTopic  string             `json:"debateTopic,omitempty"`
	UserSide     string             `json:"userSide,omitempty"`
	AgentSide    string             `json:"agentSide,omitempty"`
	DebateMode   DebateMode         `json:"debateMode"`
	CurrentSide  Side               `json:"currentSide,omitempty"`
	TurnCount    int                `json:"turnCount"`
	MaxTurns     int                `json:"maxTurns"`
	VolumeID     string             `json:"volumeId,omitempty"`
	SandboxID    string             `json:"sandboxId,omitempty"`
	SessionID    string             `json:"sessionId,omitempty"`
	AttemptID    string             `json:"-"`
	ErrorMessage string             `json:"errorMessage,omitempty"`
	UserVerdict  string             `json:"userVerdict,omitempty"`
	LastPromptAt *time.Time         `json:"-"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// IsAIVsAI reports whether both sides are played by agents.
func (c *Conversation) IsAIVsAI() bool {
	return c.DebateMode == ModeAIVsAI
}

// SideLabel returns the stance label for a side, falling back to "Side A" / "Side B".
func (c *Conversation) SideLabel(side Side) string {
	if side == SideB {
		if c.AgentSide != "" {
			return c.AgentSide
		}
		return "Side B"
	}
	if c.UserSide != "" {
		return c.UserSide
	}
	return "Side A"
}

// DebateTurn is one persisted agent response in an ai-vs-ai debate.
type DebateTurn struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	TurnNumber     int       `json:"turnNumber"`
	Side           Side      `json:"side"`
	SideLabel      string    `json:"sideLabel"`
	Persona        string    `json:"persona"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Vote is a single audience vote.
type Vote struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Side           AudienceSide `json:"side"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// VoteTally counts votes per side.
type VoteTally struct {
	User  int `json:"user"`
	Agent int `json:"agent"`
}

// Comment is an audience comment, optionally supporting a side.
type Comment struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId,omitempty"`
	Nickname       string       `json:"nickname"`
	Content        string       `json:"content"`
	Side           AudienceSide `json:"side,omitempty"`
	IsTagIn        bool         `json:"isTagIn"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// CommentTally counts comments that declared a side.
type CommentTally struct {
	User  int `json:"user"`
	Agent int `json:"agent"`
}

// DebateMetadata is supplied with the first message of a new conversation.
type DebateMetadata struct {
	Topic      string `json:"topic,omitempty"`
	UserSide   string `json:"userSide,omitempty"`
	AgentSide  string `json:"agentSide,omitempty"`
	DebateMode string `json:"debateMode,omitempty"`
	MaxTurns   int    `json:"maxTurns,omitempty"`
}

// ConversationSummary is a lightweight row for the admin listing.
type ConversationSummary struct {
	ID           string             `json:"id"`
	Status       ConversationStatus `json:"status"`
	DebateTopic  string             `json:"debateTopic,omitempty"`
	UserSide     string             `json:"userSide,omitempty"`
	AgentSide    string             `json:"agentSide,omitempty"`
	DebateMode   DebateMode         `json:"debateMode"`
	TurnCount    int                `json:"turnCount"`
	MaxTurns     int                `json:"maxTurns"`
	SandboxID    string             `json:"sandboxId,omitempty"`
	VoteCount    int                `json:"voteCount"`
	CommentCount int                `json:"commentCount"`
	DebateTurns  int                `json:"debateTurnCount"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// GalleryEntry is a public listing row with vote tallies.
type GalleryEntry struct {
	ID          string             `json:"id"`
	Status      ConversationStatus `json:"status"`
	DebateTopic string             `json:"debateTopic"`
	UserSide    string             `json:"userSide,omitempty"`
	AgentSide   string             `json:"agentSide,omitempty"`
	DebateMode  DebateMode         `json:"debateMode"`
	TurnCount   int                `json:"turnCount"`
	Votes       VoteTally          `json:"votes"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}
