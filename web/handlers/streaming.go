package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alienxp03/toron/internal/core"
)

// handleConversationStream streams conversation state using Server-Sent Events.
// A "status" event is sent on connect and whenever the turn state changes,
// and "complete" once the conversation stops running.
func (h *Handler) handleConversationStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	slog.Debug("New conversation stream connection", "conversation_id", id, "remote_addr", r.RemoteAddr)

	conv, err := h.orch.Status(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("Streaming unsupported: ResponseWriter does not implement http.Flusher")
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Set headers for SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	h.sendSSEEvent(w, flusher, "status", conv)
	if conv.Status != core.StatusRunning {
		h.sendSSEEvent(w, flusher, "complete", conv)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.StreamTimeout)
	defer cancel()

	ticker := time.NewTicker(h.opts.StreamPollInterval)
	defer ticker.Stop()

	last := conv
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Stream context done", "conversation_id", id)
			return
		case <-ticker.C:
			current, err := h.orch.Status(ctx, id)
			if err != nil {
				slog.Warn("Stream lost conversation", "conversation_id", id, "error", err)
				h.sendSSEError(w, flusher, "Conversation not available")
				return
			}

			if changed(last, current) {
				h.sendSSEEvent(w, flusher, "status", current)
				last = current
			}

			if current.Status != core.StatusRunning {
				slog.Debug("Conversation settled during stream", "conversation_id", id, "status", current.Status)
				h.sendSSEEvent(w, flusher, "complete", current)
				return
			}
		}
	}
}

func changed(a, b *core.Conversation) bool {
	return a.Status != b.Status ||
		a.TurnCount != b.TurnCount ||
		a.CurrentSide != b.CurrentSide ||
		a.SessionID != b.SessionID
}

// sendSSEEvent sends a server-sent event.
func (h *Handler) sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		slog.Error("Failed to marshal SSE data", "error", err)
		return
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		slog.Debug("Failed to write SSE event", "error", err)
		return
	}
	flusher.Flush()
}

// sendSSEError sends an error event.
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, message string) {
	h.sendSSEEvent(w, flusher, "error", map[string]string{"message": message})
}
