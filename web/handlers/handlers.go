// Package handlers provides the HTTP API for debates, the agent callback and
// the audience endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alienxp03/toron/internal/core"
	"github.com/alienxp03/toron/internal/export"
	"github.com/alienxp03/toron/internal/orchestrator"
	"github.com/alienxp03/toron/internal/persona"
	"github.com/alienxp03/toron/internal/sandbox"
	"github.com/alienxp03/toron/internal/topic"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Options tunes the handler.
type Options struct {
	// RequestsPerSecond and Burst throttle public writes per client IP.
	// Zero disables throttling.
	RequestsPerSecond float64
	Burst             int

	// StreamPollInterval is how often the SSE stream re-reads the conversation.
	StreamPollInterval time.Duration

	// StreamTimeout bounds one SSE connection.
	StreamTimeout time.Duration
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	orch    *orchestrator.Orchestrator
	limiter *ipLimiter
	opts    Options
}

// New creates a new Handler.
func New(orch *orchestrator.Orchestrator, opts Options) *Handler {
	if opts.StreamPollInterval <= 0 {
		opts.StreamPollInterval = time.Second
	}
	if opts.StreamTimeout <= 0 {
		opts.StreamTimeout = 30 * time.Minute
	}

	h := &Handler{orch: orch, opts: opts}
	if opts.RequestsPerSecond > 0 {
		h.limiter = newIPLimiter(opts.RequestsPerSecond, opts.Burst)
	}
	return h
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/conversations", func(r chi.Router) {
			r.With(h.rateLimit).Post("/", h.handleSubmit)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetConversation)
				r.Get("/stream", h.handleConversationStream)
				r.Post("/status", h.handleStatusCallback)
				r.With(h.rateLimit).Post("/vote", h.handleVote)
				r.Get("/comments", h.handleListComments)
				r.With(h.rateLimit).Post("/comments", h.handleAddComment)
				r.Post("/verdict", h.handleVerdict)
				r.Get("/files", h.handleFileTree)
				r.Get("/files/content", h.handleFileContent)
				r.Get("/export/{format}", h.handleExport)
			})
		})

		r.Get("/debates", h.handleGallery)
		r.Get("/topics", h.handleTopics)
		r.Get("/personas", h.handlePersonas)

		r.Route("/admin/debates", func(r chi.Router) {
			r.Get("/", h.handleAdminList)
			r.Delete("/", h.handleAdminBulkDelete)
			r.Delete("/{id}", h.handleAdminDelete)
		})
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"provider": h.orch.ProviderName(),
	})
}

// Conversation handlers

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}

	// The turn must start even if the browser goes away mid-request.
	resp, err := h.orch.SubmitMessage(context.WithoutCancel(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, resp)
}

func (h *Handler) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	view, err := h.orch.GetConversation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, view)
}

type callbackResponse struct {
	Success bool `json:"success"`
	*orchestrator.TurnOutcome
}

func (h *Handler) handleStatusCallback(w http.ResponseWriter, r *http.Request) {
	var res orchestrator.TurnResult
	if !h.decode(w, r, &res) {
		return
	}
	res.ConversationID = chi.URLParam(r, "id")
	res.AttemptID = r.URL.Query().Get("attempt")

	// Chaining outlives the agent's connection, which closes when it exits.
	outcome, err := h.orch.OnTurnComplete(context.WithoutCancel(r.Context()), res)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, callbackResponse{Success: true, TurnOutcome: outcome})
}

type voteRequest struct {
	Side core.AudienceSide `json:"side"`
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if !h.decode(w, r, &req) {
		return
	}

	tally, err := h.orch.CastVote(r.Context(), chi.URLParam(r, "id"), req.Side)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, tally)
}

func (h *Handler) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.orch.ListComments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, map[string]any{"comments": comments})
}

func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.CommentRequest
	if !h.decode(w, r, &req) {
		return
	}

	comment, err := h.orch.AddComment(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.json(w, http.StatusCreated, comment)
}

type verdictRequest struct {
	Verdict string `json:"verdict"`
}

func (h *Handler) handleVerdict(w http.ResponseWriter, r *http.Request) {
	var req verdictRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.orch.SubmitVerdict(r.Context(), chi.URLParam(r, "id"), req.Verdict); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleFileTree(w http.ResponseWriter, r *http.Request) {
	tree, err := h.orch.FileTree(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, map[string]any{"files": tree})
}

func (h *Handler) handleFileContent(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		h.writeError(w, r, core.Invalid("path", "path is required"))
		return
	}

	data, err := h.orch.ReadFile(r.Context(), chi.URLParam(r, "id"), path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Write(data)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := chi.URLParam(r, "format")

	exporter, err := export.GetExporter(export.Format(format))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	view, err := h.orch.GetConversation(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	filename := export.GenerateFilename(view.Conversation, exporter.FileExtension())
	w.Header().Set("Content-Type", exporter.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	if err := exporter.Export(export.NewDocument(view), w); err != nil {
		slog.Error("Export failed", "conversation_id", id, "format", format, "error", err)
	}
}

// Catalog handlers

func (h *Handler) handleGallery(w http.ResponseWriter, r *http.Request) {
	debates, err := h.orch.ListGallery(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, map[string]any{"debates": debates})
}

func (h *Handler) handleTopics(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]any{"topics": topic.List()})
}

func (h *Handler) handlePersonas(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]any{"personas": persona.List()})
}

// Admin handlers

func (h *Handler) handleAdminList(w http.ResponseWriter, r *http.Request) {
	debates, err := h.orch.ListAdmin(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, map[string]any{"debates": debates})
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

func (h *Handler) handleAdminBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if !h.decode(w, r, &req) {
		return
	}

	n, err := h.orch.DeleteConversations(r.Context(), req.IDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, map[string]any{
		"deleted": n,
		"message": fmt.Sprintf("%d debates deleted", n),
	})
}

func (h *Handler) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.orch.DeleteConversation(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.json(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

// Helper methods

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handler) json(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	h.json(w, code, map[string]string{"error": message})
}

// writeError maps domain errors onto status codes.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		h.jsonError(w, verr.Message, http.StatusBadRequest)
	case errors.Is(err, core.ErrValidation):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, core.ErrNotFound), errors.Is(err, sandbox.ErrNotFound):
		h.jsonError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, core.ErrConflict):
		h.jsonError(w, "Agent is already running", http.StatusConflict)
	default:
		slog.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		h.jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}
