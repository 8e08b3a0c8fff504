package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aswatji/serverchat/internal/metrics"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// CreateMessageRequest represents the message creation request body.
type CreateMessageRequest struct {
	ChatID  string `json:"chat_id" validate:"required"`
	SentBy  string `json:"sent_by" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// UpdateMessageRequest represents a message edit.
type UpdateMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// ListChatMessages returns one page of a chat's history, oldest first.
// Pages count back from the newest message.
func (h *Handler) ListChatMessages(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)

	messages, err := h.db.ListChatMessages(r.Context(), chi.URLParam(r, "chatId"), limit, (page-1)*limit)
	if err != nil {
		h.storeError(w, r, err, "chat")
		return
	}
	h.JSON(w, http.StatusOK, messages)
}

// pageParams parses page (default 1) and limit (default 50, max 100).
func pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()

	page, err := strconv.Atoi(q.Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(q.Get("limit"))
	if err != nil || limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	return page, limit
}

// CreateMessage stores a message and broadcasts it to the chat room.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req CreateMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		h.Error(w, http.StatusBadRequest, "message content cannot be empty")
		return
	}

	msg, err := h.db.CreateMessage(r.Context(), req.ChatID, req.SentBy, content)
	if err != nil {
		metrics.PersistFailures.Inc()
		h.storeError(w, r, err, "chat")
		return
	}
	metrics.MessagesPersisted.WithLabelValues("rest").Inc()

	if h.engine != nil {
		// Fills msg.Sender before fanning out.
		h.engine.PublishMessage(r.Context(), msg)
	} else if user, err := h.db.GetUser(r.Context(), msg.SenderID); err == nil {
		msg.Sender = user.Ref()
	}

	h.JSON(w, http.StatusCreated, msg)
}

// GetMessage returns one message with its sender.
func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.db.GetMessage(r.Context(), chi.URLParam(r, "messageId"))
	if err != nil {
		h.storeError(w, r, err, "message")
		return
	}
	h.JSON(w, http.StatusOK, msg)
}

// UpdateMessage edits a message's content.
func (h *Handler) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	var req UpdateMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		h.Error(w, http.StatusBadRequest, "message content cannot be empty")
		return
	}

	msg, err := h.db.UpdateMessage(r.Context(), chi.URLParam(r, "messageId"), content)
	if err != nil {
		h.storeError(w, r, err, "message")
		return
	}
	h.JSON(w, http.StatusOK, msg)
}

// DeleteMessage removes a message.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DeleteMessage(r.Context(), chi.URLParam(r, "messageId")); err != nil {
		h.storeError(w, r, err, "message")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
