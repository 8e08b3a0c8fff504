package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aswatji/serverchat/internal/metrics"
)

// CreateChatRequest represents the chat creation request body.
type CreateChatRequest struct {
	User1ID string `json:"user1_id" validate:"required"`
	User2ID string `json:"user2_id" validate:"required,nefield=User1ID"`
}

// ListUserChats returns every chat a user takes part in, each with its last message.
func (h *Handler) ListUserChats(w http.ResponseWriter, r *http.Request) {
	chats, err := h.db.ListUserChats(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.storeError(w, r, err, "chat")
		return
	}
	h.JSON(w, http.StatusOK, chats)
}

// CreateChat returns the chat between two users, creating it if needed.
// Responds 201 for a new chat and 200 for an existing one.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if !h.decode(w, r, &req) {
		return
	}

	chat, created, err := h.db.CreateChat(r.Context(), req.User1ID, req.User2ID)
	if err != nil {
		h.storeError(w, r, err, "chat")
		return
	}

	if created {
		metrics.ChatsCreated.Inc()
		h.JSON(w, http.StatusCreated, chat)
		return
	}
	h.JSON(w, http.StatusOK, chat)
}

// GetChat returns a chat with both participants and its full history.
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatId")

	chat, err := h.db.GetChat(r.Context(), chatID)
	if err != nil {
		h.storeError(w, r, err, "chat")
		return
	}

	messages, err := h.db.ListChatMessages(r.Context(), chatID, 0, 0)
	if err != nil {
		h.storeError(w, r, err, "chat")
		return
	}
	chat.Messages = messages

	h.JSON(w, http.StatusOK, chat)
}

// DeleteChat removes a chat and its messages.
func (h *Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DeleteChat(r.Context(), chi.URLParam(r, "chatId")); err != nil {
		h.storeError(w, r, err, "chat")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
