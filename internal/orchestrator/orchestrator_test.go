package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alienxp03/toron/internal/core"
	"github.com/alienxp03/toron/internal/sandbox"
	"github.com/alienxp03/toron/internal/storage"
	"github.com/alienxp03/toron/internal/transcript"
)

type fakeProvider struct {
	mu        sync.Mutex
	launches  []sandbox.LaunchRequest
	killed    []string
	files     map[string][]byte
	syncs     int
	next      int
	launchErr error
	onLaunch  func(req sandbox.LaunchRequest)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{files: map[string][]byte{}}
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) CreateVolume(ctx context.Context, conversationID string) (string, error) {
	return "vol-" + conversationID, nil
}

func (f *fakeProvider) Launch(ctx context.Context, req sandbox.LaunchRequest) (string, error) {
	f.mu.Lock()
	if f.launchErr != nil {
		err := f.launchErr
		f.mu.Unlock()
		return "", err
	}
	f.next++
	id := fmt.Sprintf("sbx-%d", f.next)
	f.launches = append(f.launches, req)
	hook := f.onLaunch
	f.mu.Unlock()

	if hook != nil {
		hook(req)
	}
	return id, nil
}

func (f *fakeProvider) Kill(ctx context.Context, sandboxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, sandboxID)
	return nil
}

func (f *fakeProvider) ReadFile(ctx context.Context, volumeID, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[volumeID+":"+path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, sandbox.ErrNotFound)
	}
	return data, nil
}

func (f *fakeProvider) ListFiles(ctx context.Context, volumeID, path string) ([]sandbox.FileInfo, error) {
	if path != "/" {
		return nil, sandbox.ErrNotFound
	}
	return []sandbox.FileInfo{{Name: "notes.md", Type: "file", Path: "/notes.md"}}, nil
}

func (f *fakeProvider) SyncVolume(ctx context.Context, volumeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	return nil
}

func (f *fakeProvider) writeTranscript(volumeID, sessionID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	line := fmt.Sprintf(`{"type":"assistant","uuid":"u-%s","sessionId":%q,"message":{"role":"assistant","content":[{"type":"text","text":%q}]}}`, sessionID, sessionID, text)
	f.files[volumeID+":"+transcript.SessionFilePath(sessionID)] = []byte(line + "\n")
}

func (f *fakeProvider) lastLaunch(t *testing.T) sandbox.LaunchRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.launches)
	return f.launches[len(f.launches)-1]
}

func setupTestOrchestrator(t *testing.T) (*Orchestrator, *storage.SQLiteStorage, *fakeProvider) {
	t.Helper()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Initialize())
	t.Cleanup(func() { store.Close() })

	provider := newFakeProvider()
	cfg := DefaultConfig()
	cfg.ChainReadDelay = 0
	cfg.SettleDelay = 0

	return New(store, provider, cfg), store, provider
}

func getConversation(t *testing.T, store storage.Storage, id string) *core.Conversation {
	t.Helper()
	c, err := store.GetConversation(id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func TestSubmitMessage_NewUserVsAI(t *testing.T) {
	orch, store, provider := setupTestOrchestrator(t)
	ctx := context.Background()

	resp, err := orch.SubmitMessage(ctx, SubmitRequest{
		Content: "Microservices are overrated.",
		Metadata: &core.DebateMetadata{
			Topic:     "Monolith vs Microservices",
			UserSide:  "For the monolith",
			AgentSide: "For microservices",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusRunning, resp.Status)

	conv := getConversation(t, store, resp.ConversationID)
	assert.Equal(t, core.StatusRunning, conv.Status)
	assert.Equal(t, core.ModeUserVsAI, conv.DebateMode)
	assert.Equal(t, core.Side(""), conv.CurrentSide)
	assert.Equal(t, 1, conv.TurnCount)
	assert.Equal(t, core.DefaultMaxTurns, conv.MaxTurns)
	assert.Equal(t, "vol-"+conv.ID, conv.VolumeID)
	assert.Equal(t, "sbx-1", conv.SandboxID)

	launch := provider.lastLaunch(t)
	assert.Equal(t, conv.AttemptID, launch.AttemptID)
	assert.Equal(t, "Microservices are overrated.", launch.Content)
	assert.Equal(t, conv.VolumeID, launch.VolumeID)
	assert.Equal(t, 1, launch.Debate.TurnCount)
	assert.Equal(t, "For the monolith", launch.Debate.UserSide)
	assert.False(t, launch.Debate.AIVsAI)
	assert.Empty(t, launch.Debate.AgentRole)
	assert.Equal(t, core.InterventionNone, launch.Debate.Intervention)
}

func TestSubmitMessage_Errors(t *testing.T) {
	orch, store, provider := setupTestOrchestrator(t)
	ctx := context.Background()

	t.Run("BlankContent", func(t *testing.T) {
		_, err := orch.SubmitMessage(ctx, SubmitRequest{Content: "  \n"})
		assert.True(t, errors.Is(err, core.ErrValidation))
	})

	t.Run("UnknownConversation", func(t *testing.T) {
		_, err := orch.SubmitMessage(ctx, SubmitRequest{ConversationID: "missing", Content: "hi"})
		assert.True(t, errors.Is(err, core.ErrNotFound))
	})

	t.Run("ConflictWhileRunning", func(t *testing.T) {
		resp, err := orch.SubmitMessage(ctx, SubmitRequest{Content: "first"})
		require.NoError(t, err)

		_, err = orch.SubmitMessage(ctx, SubmitRequest{ConversationID: resp.ConversationID, Content: "second"})
		assert.True(t, errors.Is(err, core.ErrConflict))

		conv := getConversation(t, store, resp.ConversationID)
		assert.Equal(t, 1, conv.TurnCount)
	})

	t.Run("LaunchFailure", func(t *testing.T) {
		provider.mu.Lock()
		provider.launchErr = errors.New("quota exceeded")
		provider.mu.Unlock()
		defer func() {
			provider.mu.Lock()
			provider.launchErr = nil
			provider.mu.Unlock()
		}()

		_, err := orch.SubmitMessage(ctx, SubmitRequest{Content: "hello"})
		require.Error(t, err)

		summaries, err := store.ListConversations(0, 0)
		require.NoError(t, err)

		var failed *core.Conversation
		for _, s := range summaries {
			if s.Status == core.StatusError {
				failed = getConversation(t, store, s.ID)
			}
		}
		require.NotNil(t, failed, "launch failure must leave the conversation in error")
		assert.Contains(t, failed.ErrorMessage, "quota exceeded")
		assert.Empty(t, failed.SandboxID)
		assert.Empty(t, failed.AttemptID)

		// A new message may retry the errored conversation.
		provider.mu.Lock()
		provider.launchErr = nil
		provider.mu.Unlock()
		_, err = orch.SubmitMessage(ctx, SubmitRequest{ConversationID: failed.ID, Content: "retry"})
		require.NoError(t, err)
		assert.Equal(t, 2, getConversation(t, store, failed.ID).TurnCount)
	})
}

func TestSubmitMessage_AudienceAndIntervention(t *testing.T) {
	orch, store, provider := setupTestOrchestrator(t)
	ctx := context.Background()

	resp, err := orch.SubmitMessage(ctx, SubmitRequest{
		Content:  "SQL wins.",
		Metadata: &core.DebateMetadata{Topic: "SQL vs NoSQL", UserSide: "SQL", AgentSide: "NoSQL"},
	})
	require.NoError(t, err)
	id := resp.ConversationID

	first := provider.lastLaunch(t)
	_, err = orch.OnTurnComplete(ctx, TurnResult{ConversationID: id, AttemptID: first.AttemptID, Status: core.StatusCompleted, SessionID: "sess-1"})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := orch.CastVote(ctx, id, core.AudienceUser)
		require.NoError(t, err)
	}
	tally, err := orch.CastVote(ctx, id, core.AudienceAgent)
	require.NoError(t, err)
	assert.Equal(t, core.VoteTally{User: 5, Agent: 1}, tally)

	_, err = orch.AddComment(ctx, id, CommentRequest{Content: "Joins are fine", Nickname: "dba", Side: core.AudienceUser, IsTagIn: true})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = orch.AddComment(ctx, id, CommentRequest{Content: "Schemas save lives", Side: core.AudienceUser})
	require.NoError(t, err)

	_, err = orch.SubmitMessage(ctx, SubmitRequest{ConversationID: id, Content: "Transactions matter."})
	require.NoError(t, err)

	second := provider.lastLaunch(t)
	assert.Equal(t, "sess-1", second.ResumeSessionID)
	assert.Equal(t, 2, second.Debate.TurnCount)
	assert.Equal(t, core.InterventionLosing, second.Debate.Intervention)
	assert.Equal(t,
		"Transactions matter.\n\n"+
			"[Audience reactions: weave these opinions into the debate. Audience support sways the verdict!]\n"+
			"- dba [SQL supporter] (tag-in!): \"Joins are fine\"\n"+
			"- audience [SQL supporter]: \"Schemas save lives\"",
		second.Content)

	conv := getConversation(t, store, id)
	require.NotNil(t, conv.LastPromptAt)

	_, err = orch.OnTurnComplete(ctx, TurnResult{ConversationID: id, AttemptID: second.AttemptID, Status: core.StatusCompleted})
	require.NoError(t, err)

	_, err = orch.SubmitMessage(ctx, SubmitRequest{ConversationID: id, Content: "Final point.", IsVerdictRequest: true})
	require.NoError(t, err)

	third := provider.lastLaunch(t)
	assert.Equal(t, "Final point.", third.Content, "surfaced comments must not repeat")
	assert.True(t, third.Debate.IsVerdictRequest)
	assert.Equal(t, "sess-1", third.ResumeSessionID, "session kept when the callback reports none")
}

func TestOnTurnComplete_Validation(t *testing.T) {
	orch, _, _ := setupTestOrchestrator(t)
	ctx := context.Background()

	_, err := orch.OnTurnComplete(ctx, TurnResult{ConversationID: "x", Status: core.StatusRunning})
	assert.True(t, errors.Is(err, core.ErrValidation))

	_, err = orch.OnTurnComplete(ctx, TurnResult{ConversationID: "missing", Status: core.StatusCompleted})
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestOnTurnComplete_NormalCompletion(t *testing.T) {
	orch, store, provider := setupTestOrchestrator(t)
	ctx := context.Background()

	resp, err := orch.SubmitMessage(ctx, SubmitRequest{Content: "hello"})
	require.NoError(t, err)
	launch := provider.lastLaunch(t)

	outcome, err := orch.OnTurnComplete(ctx, TurnResult{
		ConversationID: resp.ConversationID,
		AttemptID:      launch.AttemptID,
		Status:         core.StatusError,
		ErrorMessage:   "agent crashed",
		SessionID:      "sess-1",
	})
	require.NoError(t, err)
	assert.False(t, outcome.Chained)
	assert.False(t, outcome.Ignored)

	conv := getConversation(t, store, resp.ConversationID)
	assert.Equal(t, core.StatusError, conv.Status)
	assert.Equal(t, "agent crashed", conv.ErrorMessage)
	assert.Equal(t, "sess-1", conv.SessionID)
	assert.Empty(t, conv.SandboxID)
	assert.Contains(t, provider.killed, "sbx-1")
	assert.Equal(t, 1, provider.syncs, "settling uses the provider sync when available")

	t.Run("ReplayIgnored", func(t *testing.T) {
		outcome, err := orch.OnTurnComplete(ctx, TurnResult{
			ConversationID: resp.ConversationID,
			AttemptID:      launch.AttemptID,
			Status:         core.StatusCompleted,
		})
		require.NoError(t, err)
		assert.True(t, outcome.Ignored)
		assert.Equal(t, core.StatusError, getConversation(t, store, resp.ConversationID).Status)
	})
}

func TestOnTurnComplete_AgentFinishesBeforeLaunchRecorded(t *testing.T) {
	orch, store, provider := setupTestOrchestrator(t)
	ctx := context.Background()

	var callbackErr error
	provider.onLaunch = func(req sandbox.LaunchRequest) {
		_, callbackErr = orch.OnTurnComplete(ctx, TurnResult{
			ConversationID: req.ConversationID,
			AttemptID:      req.AttemptID,
			Status:         core.StatusCompleted,
			SessionID:      "sess-fast",
		})
	}

	resp, err := orch.SubmitMessage(ctx, SubmitRequest{Content: "quick one"})
	require.NoError(t, err)
	require.NoError(t, callbackErr)

	conv := getConversation(t, store, resp.ConversationID)
	assert.Equal(t, core.StatusCompleted, conv.Status)
	assert.Empty(t, conv.SandboxID, "a finished turn must not keep a sandbox")
	assert.Equal(t, "sess-fast", conv.SessionID)
	assert.Contains(t, provider.killed, "sbx-1")
}

func TestAIVsAIChaining(t *testing.T) {
	orch, store, provider := setupTestOrchestrator(t)
	ctx := context.Background()

	resp, err := orch.SubmitMessage(ctx, SubmitRequest{
		Content: "Begin.",
		Metadata: &core.DebateMetadata{
			Topic:      "REST vs GraphQL",
			UserSide:   "For REST",
			AgentSide:  "For GraphQL",
			DebateMode: "ai-vs-ai",
			MaxTurns:   3,
		},
	})
	require.NoError(t, err)
	id := resp.ConversationID

	conv := getConversation(t, store, id)
	assert.Equal(t, core.SideA, conv.CurrentSide)
	assert.Equal(t, 3, conv.MaxTurns)

	first := provider.lastLaunch(t)
	assert.True(t, first.Debate.AIVsAI)
	assert.Equal(t, sandbox.RoleAgentA, first.Debate.AgentRole)
	assert.Empty(t, first.ResumeSessionID)

	// Turn 1 (sideA) hands over to sideB with the audience comment attached.
	_, err = orch.AddComment(ctx, id, CommentRequest{Content: "Caching!", Nickname: "cdn"})
	require.NoError(t, err)
	provider.writeTranscript(conv.VolumeID, "sess-a", "REST is simpler.")

	outcome, err := orch.OnTurnComplete(ctx, TurnResult{ConversationID: id, AttemptID: first.AttemptID, Status: core.StatusCompleted, SessionID: "sess-a"})
	require.NoError(t, err)
	assert.True(t, outcome.Chained)
	assert.Equal(t, core.SideB, outcome.NextSide)

	conv = getConversation(t, store, id)
	assert.Equal(t, core.StatusRunning, conv.Status, "chaining never exposes a completed status")
	assert.Equal(t, 2, conv.TurnCount)
	assert.Equal(t, core.SideB, conv.CurrentSide)
	assert.Equal(t, "sbx-2", conv.SandboxID)
	assert.Contains(t, provider.killed, "sbx-1")

	second := provider.lastLaunch(t)
	assert.Equal(t, conv.AttemptID, second.AttemptID)
	assert.Equal(t, sandbox.RoleAgentB, second.Debate.AgentRole)
	assert.Equal(t, "For REST", second.Debate.UserSide, "opponent is the side that just spoke")
	assert.Equal(t, "For GraphQL", second.Debate.AgentSide)
	assert.Equal(t, 2, second.Debate.TurnCount)
	assert.Empty(t, second.ResumeSessionID, "ai-vs-ai turns start fresh")
	assert.Equal(t, "REST is simpler.\n\n[Moderator & audience comments]\n- cdn: \"Caching!\"", second.Content)

	// Replaying the first callback changes nothing.
	outcome, err = orch.OnTurnComplete(ctx, TurnResult{ConversationID: id, AttemptID: first.AttemptID, Status: core.StatusCompleted, SessionID: "sess-a"})
	require.NoError(t, err)
	assert.True(t, outcome.Ignored)
	assert.Equal(t, 2, getConversation(t, store, id).TurnCount)

	// Turn 2 (sideB) hands back to sideA.
	provider.writeTranscript(conv.VolumeID, "sess-b", "GraphQL avoids overfetching.")
	outcome, err = orch.OnTurnComplete(ctx, TurnResult{ConversationID: id, AttemptID: second.AttemptID, Status: core.StatusCompleted, SessionID: "sess-b"})
	require.NoError(t, err)
	assert.True(t, outcome.Chained)
	assert.Equal(t, core.SideA, outcome.NextSide)

	third := provider.lastLaunch(t)
	assert.Equal(t, sandbox.RoleAgentA, third.Debate.AgentRole)
	assert.Equal(t, "For GraphQL", third.Debate.UserSide)
	assert.Equal(t, "For REST", third.Debate.AgentSide)

	// Turn 3 reaches maxTurns and completes normally.
	provider.writeTranscript(conv.VolumeID, "sess-c", "Final word.")
	outcome, err = orch.OnTurnComplete(ctx, TurnResult{ConversationID: id, AttemptID: third.AttemptID, Status: core.StatusCompleted, SessionID: "sess-c"})
	require.NoError(t, err)
	assert.False(t, outcome.Chained)

	conv = getConversation(t, store, id)
	assert.Equal(t, core.StatusCompleted, conv.Status)
	assert.Equal(t, 3, conv.TurnCount)
	assert.Empty(t, conv.SandboxID)

	turns, err := store.ListTurns(id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, 1, turns[0].TurnNumber)
	assert.Equal(t, core.SideA, turns[0].Side)
	assert.Equal(t, "Alpha", turns[0].Persona)
	assert.Equal(t, "For REST", turns[0].SideLabel)
	assert.Equal(t, 2, turns[1].TurnNumber)
	assert.Equal(t, core.SideB, turns[1].Side)
	assert.Equal(t, "Omega", turns[1].Persona)
	assert.Equal(t, "GraphQL avoids overfetching.", turns[1].Content)

	// The human closes the debate.
	require.NoError(t, orch.SubmitVerdict(ctx, id, "  REST takes it.  "))
	assert.Equal(t, "REST takes it.", getConversation(t, store, id).UserVerdict)
}

func TestAIVsAIChaining_FallsBack(t *testing.T) {
	newDebate := func(t *testing.T, orch *Orchestrator, provider *fakeProvider) (string, sandbox.LaunchRequest) {
		resp, err := orch.SubmitMessage(context.Background(), SubmitRequest{
			Content:  "Begin.",
			Metadata: &core.DebateMetadata{DebateMode: "ai-vs-ai", MaxTurns: 4},
		})
		require.NoError(t, err)
		return resp.ConversationID, provider.lastLaunch(t)
	}

	t.Run("TranscriptMissing", func(t *testing.T) {
		orch, store, provider := setupTestOrchestrator(t)
		id, launch := newDebate(t, orch, provider)

		outcome, err := orch.OnTurnComplete(context.Background(), TurnResult{ConversationID: id, AttemptID: launch.AttemptID, Status: core.StatusCompleted, SessionID: "sess-x"})
		require.NoError(t, err)
		assert.False(t, outcome.Chained)

		conv := getConversation(t, store, id)
		assert.Equal(t, core.StatusCompleted, conv.Status)
		assert.Equal(t, 1, conv.TurnCount)
		assert.Equal(t, core.SideA, conv.CurrentSide)
		assert.Empty(t, conv.SandboxID)
	})

	t.Run("NoAssistantText", func(t *testing.T) {
		orch, store, provider := setupTestOrchestrator(t)
		id, launch := newDebate(t, orch, provider)
		conv := getConversation(t, store, id)
		provider.writeTranscript(conv.VolumeID, "sess-x", "")

		outcome, err := orch.OnTurnComplete(context.Background(), TurnResult{ConversationID: id, AttemptID: launch.AttemptID, Status: core.StatusCompleted, SessionID: "sess-x"})
		require.NoError(t, err)
		assert.False(t, outcome.Chained)
		assert.Equal(t, core.StatusCompleted, getConversation(t, store, id).Status)
	})

	t.Run("NextLaunchFails", func(t *testing.T) {
		orch, store, provider := setupTestOrchestrator(t)
		id, launch := newDebate(t, orch, provider)
		conv := getConversation(t, store, id)
		provider.writeTranscript(conv.VolumeID, "sess-a", "Opening.")

		provider.mu.Lock()
		provider.launchErr = errors.New("no capacity")
		provider.mu.Unlock()

		outcome, err := orch.OnTurnComplete(context.Background(), TurnResult{ConversationID: id, AttemptID: launch.AttemptID, Status: core.StatusCompleted, SessionID: "sess-a"})
		require.NoError(t, err)
		assert.False(t, outcome.Chained)

		conv = getConversation(t, store, id)
		assert.Equal(t, core.StatusCompleted, conv.Status, "never stuck in running")
		assert.Empty(t, conv.SandboxID)
		assert.Empty(t, conv.AttemptID)
		assert.Equal(t, 2, conv.TurnCount)
		assert.Equal(t, core.SideB, conv.CurrentSide)
	})

	t.Run("ErrorStatusDoesNotChain", func(t *testing.T) {
		orch, store, provider := setupTestOrchestrator(t)
		id, launch := newDebate(t, orch, provider)
		conv := getConversation(t, store, id)
		provider.writeTranscript(conv.VolumeID, "sess-a", "Opening.")

		outcome, err := orch.OnTurnComplete(context.Background(), TurnResult{ConversationID: id, AttemptID: launch.AttemptID, Status: core.StatusError, SessionID: "sess-a"})
		require.NoError(t, err)
		assert.False(t, outcome.Chained)
		assert.Equal(t, core.StatusError, getConversation(t, store, id).Status)
	})
}

func TestAudience(t *testing.T) {
	orch, _, _ := setupTestOrchestrator(t)
	ctx := context.Background()

	resp, err := orch.SubmitMessage(ctx, SubmitRequest{Content: "hi"})
	require.NoError(t, err)
	id := resp.ConversationID

	_, err = orch.CastVote(ctx, id, "both")
	assert.True(t, errors.Is(err, core.ErrValidation))
	_, err = orch.CastVote(ctx, "missing", core.AudienceUser)
	assert.True(t, errors.Is(err, core.ErrNotFound))

	_, err = orch.AddComment(ctx, id, CommentRequest{Content: "   "})
	assert.True(t, errors.Is(err, core.ErrValidation))
	_, err = orch.AddComment(ctx, id, CommentRequest{Content: "x", Side: "judge"})
	assert.True(t, errors.Is(err, core.ErrValidation))

	c, err := orch.AddComment(ctx, id, CommentRequest{Content: "  go team  "})
	require.NoError(t, err)
	assert.Equal(t, core.DefaultNickname, c.Nickname)
	assert.Equal(t, "go team", c.Content)

	comments, err := orch.ListComments(ctx, id)
	require.NoError(t, err)
	require.Len(t, comments, 1)

	err = orch.SubmitVerdict(ctx, id, "user wins")
	assert.True(t, errors.Is(err, core.ErrValidation), "verdicts are ai-vs-ai only")
	err = orch.SubmitVerdict(ctx, id, " ")
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestIntervention(t *testing.T) {
	tests := []struct {
		name     string
		votes    core.VoteTally
		comments core.CommentTally
		score    float64
		want     core.InterventionMode
	}{
		{"agent behind", core.VoteTally{User: 5, Agent: 1}, core.CommentTally{User: 2}, 5, core.InterventionLosing},
		{"exactly losing", core.VoteTally{User: 3}, core.CommentTally{}, 3, core.InterventionLosing},
		{"agent ahead", core.VoteTally{Agent: 2}, core.CommentTally{Agent: 2}, -3, core.InterventionWinning},
		{"close", core.VoteTally{User: 2, Agent: 1}, core.CommentTally{User: 1, Agent: 2}, 0.5, core.InterventionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := AudienceScore(tt.votes, tt.comments)
			assert.Equal(t, tt.score, score)
			assert.Equal(t, tt.want, ClassifyIntervention(score))
		})
	}
}

func TestGetConversation(t *testing.T) {
	orch, _, provider := setupTestOrchestrator(t)
	ctx := context.Background()

	resp, err := orch.SubmitMessage(ctx, SubmitRequest{Content: "hi", Metadata: &core.DebateMetadata{Topic: "Pour vs Dip"}})
	require.NoError(t, err)
	id := resp.ConversationID
	launch := provider.lastLaunch(t)

	view, err := orch.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, view.Messages, "no session yet")
	assert.Nil(t, view.Turns, "turns are only listed for ai-vs-ai")

	_, err = orch.OnTurnComplete(ctx, TurnResult{ConversationID: id, AttemptID: launch.AttemptID, Status: core.StatusCompleted, SessionID: "sess-1"})
	require.NoError(t, err)

	view, err = orch.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, view.Messages, "unreadable transcript yields no messages")

	provider.writeTranscript(view.VolumeID, "sess-1", "Dipping keeps it crisp.")
	view, err = orch.GetConversation(ctx, id)
	require.NoError(t, err)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, "Dipping keeps it crisp.", transcript.ExtractLastAssistantText(view.Messages))
	assert.Equal(t, core.StatusCompleted, view.Status)

	gallery, err := orch.ListGallery(ctx)
	require.NoError(t, err)
	require.Len(t, gallery, 1)
	assert.Equal(t, "Pour vs Dip", gallery[0].DebateTopic)

	tree, err := orch.FileTree(ctx, id)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Equal(t, "notes.md", tree[0].Name)

	_, err = orch.GetConversation(ctx, "missing")
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestDelete(t *testing.T) {
	orch, store, provider := setupTestOrchestrator(t)
	ctx := context.Background()

	running, err := orch.SubmitMessage(ctx, SubmitRequest{Content: "one"})
	require.NoError(t, err)
	other, err := orch.SubmitMessage(ctx, SubmitRequest{Content: "two"})
	require.NoError(t, err)
	_, err = orch.AddComment(ctx, other.ConversationID, CommentRequest{Content: "bye"})
	require.NoError(t, err)

	require.NoError(t, orch.DeleteConversation(ctx, running.ConversationID))
	assert.Contains(t, provider.killed, "sbx-1")

	c, err := store.GetConversation(running.ConversationID)
	require.NoError(t, err)
	assert.Nil(t, c)

	err = orch.DeleteConversation(ctx, running.ConversationID)
	assert.True(t, errors.Is(err, core.ErrNotFound))

	_, err = orch.DeleteConversations(ctx, nil)
	assert.True(t, errors.Is(err, core.ErrValidation))

	n, err := orch.DeleteConversations(ctx, []string{other.ConversationID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, provider.killed, "sbx-2")

	admin, err := orch.ListAdmin(ctx)
	require.NoError(t, err)
	assert.Empty(t, admin)
}
