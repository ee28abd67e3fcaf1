package orchestrator

import (
	"context"
	"log/slog"

	"github.com/alienxp03/toron/internal/core"
	"github.com/alienxp03/toron/internal/sandbox"
	"github.com/alienxp03/toron/internal/transcript"
)

// GalleryLimit caps the public gallery listing.
const GalleryLimit = 50

// ConversationView is the full state the frontend polls.
type ConversationView struct {
	*core.Conversation
	Messages []transcript.Entry    `json:"messages"`
	Evidence []transcript.Evidence `json:"evidence,omitempty"`
	Votes    core.VoteTally        `json:"votes"`
	Comments []*core.Comment       `json:"comments"`
	Turns    []*core.DebateTurn    `json:"turns,omitempty"`
}

// GetConversation assembles state, audience activity, ai-vs-ai turns and the
// parsed transcript. An unreadable transcript yields no messages.
func (o *Orchestrator) GetConversation(ctx context.Context, id string) (*ConversationView, error) {
	conv, err := o.requireConversation(id)
	if err != nil {
		return nil, err
	}

	view := &ConversationView{Conversation: conv, Messages: []transcript.Entry{}}

	if view.Votes, err = o.storage.CountVotes(id); err != nil {
		return nil, err
	}
	if view.Comments, err = o.ListComments(ctx, id); err != nil {
		return nil, err
	}
	if conv.IsAIVsAI() {
		if view.Turns, err = o.storage.ListTurns(id); err != nil {
			return nil, err
		}
		if view.Turns == nil {
			view.Turns = []*core.DebateTurn{}
		}
	}

	if conv.SessionID != "" && conv.VolumeID != "" {
		data, err := o.provider.ReadFile(ctx, conv.VolumeID, transcript.SessionFilePath(conv.SessionID))
		if err != nil {
			slog.Debug("Transcript not readable yet", "conversation_id", id, "error", err)
		} else {
			view.Messages = transcript.Parse(data)
			view.Evidence = transcript.ExtractEvidence(view.Messages)
		}
	}

	return view, nil
}

// Status returns just the conversation row, for cheap polling.
func (o *Orchestrator) Status(ctx context.Context, id string) (*core.Conversation, error) {
	return o.requireConversation(id)
}

// ListGallery returns the newest debates that have a topic.
func (o *Orchestrator) ListGallery(ctx context.Context) ([]*core.GalleryEntry, error) {
	entries, err := o.storage.ListGallery(GalleryLimit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*core.GalleryEntry{}
	}
	return entries, nil
}

// ListAdmin returns every conversation with child counts.
func (o *Orchestrator) ListAdmin(ctx context.Context) ([]*core.ConversationSummary, error) {
	summaries, err := o.storage.ListConversations(0, 0)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []*core.ConversationSummary{}
	}
	return summaries, nil
}

// FileTree lists the conversation's volume.
func (o *Orchestrator) FileTree(ctx context.Context, id string) ([]sandbox.FileInfo, error) {
	conv, err := o.requireConversation(id)
	if err != nil {
		return nil, err
	}
	if conv.VolumeID == "" {
		return []sandbox.FileInfo{}, nil
	}
	return sandbox.BuildFileTree(ctx, o.provider, conv.VolumeID, "/", sandbox.DefaultTreeDepth), nil
}

// ReadFile reads one file from the conversation's volume.
func (o *Orchestrator) ReadFile(ctx context.Context, id, path string) ([]byte, error) {
	conv, err := o.requireConversation(id)
	if err != nil {
		return nil, err
	}
	if conv.VolumeID == "" {
		return nil, core.NotFound("file", path)
	}
	return o.provider.ReadFile(ctx, conv.VolumeID, path)
}

// DeleteConversation removes one conversation, killing its sandbox first.
func (o *Orchestrator) DeleteConversation(ctx context.Context, id string) error {
	conv, err := o.requireConversation(id)
	if err != nil {
		return err
	}
	if conv.Status == core.StatusRunning {
		o.kill(ctx, conv.SandboxID)
	}

	if _, err := o.storage.DeleteConversations([]string{id}); err != nil {
		return err
	}
	slog.Info("Deleted conversation", "conversation_id", id)
	return nil
}

// DeleteConversations removes many conversations and returns how many existed.
func (o *Orchestrator) DeleteConversations(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, core.Invalid("ids", "ids array required")
	}

	for _, id := range ids {
		conv, err := o.storage.GetConversation(id)
		if err != nil {
			return 0, err
		}
		if conv != nil && conv.Status == core.StatusRunning {
			o.kill(ctx, conv.SandboxID)
		}
	}

	n, err := o.storage.DeleteConversations(ids)
	if err != nil {
		return 0, err
	}
	slog.Info("Deleted conversations", "requested", len(ids), "deleted", n)
	return n, nil
}
