package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aswatji/serverchat/internal/metrics"
	"github.com/aswatji/serverchat/internal/store"
)

const listUsersLimit = 100

// CreateUserRequest represents the user creation request body.
type CreateUserRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Email string `json:"email" validate:"required,email,max=254"`
}

// UpdateUserRequest represents a partial user update.
type UpdateUserRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=100"`
	Email *string `json:"email" validate:"omitempty,email,max=254"`
}

// ListUsers returns the newest users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.db.ListUsers(r.Context(), listUsersLimit)
	if err != nil {
		h.storeError(w, r, err, "user")
		return
	}
	h.JSON(w, http.StatusOK, users)
}

// CreateUser handles user creation.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	user, err := h.db.CreateUser(r.Context(), name, strings.TrimSpace(req.Email))
	if err != nil {
		h.storeError(w, r, err, "user")
		return
	}
	metrics.UsersCreated.Inc()

	h.JSON(w, http.StatusCreated, user)
}

// GetUser returns one user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.db.GetUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.storeError(w, r, err, "user")
		return
	}
	h.JSON(w, http.StatusOK, user)
}

// UpdateUser changes a user's name and/or email.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Name == nil && req.Email == nil {
		h.Error(w, http.StatusBadRequest, "name or email is required")
		return
	}
	if req.Name != nil {
		name := sanitizeName(*req.Name)
		if name == "" {
			h.Error(w, http.StatusBadRequest, "name must not be empty")
			return
		}
		req.Name = &name
	}

	user, err := h.db.UpdateUser(r.Context(), chi.URLParam(r, "userId"), req.Name, req.Email)
	if err != nil {
		h.storeError(w, r, err, "user")
		return
	}
	h.JSON(w, http.StatusOK, user)
}

// DeleteUser removes a user together with their chats and messages.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.db.DeleteUser(r.Context(), chi.URLParam(r, "userId")); err != nil {
		h.storeError(w, r, err, "user")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecentChats returns a user's chats by last activity from the Redis read model.
func (h *Handler) RecentChats(w http.ResponseWriter, r *http.Request) {
	if h.redis == nil {
		h.JSON(w, http.StatusOK, []store.RecentChat{})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > listUsersLimit {
		limit = 20
	}

	recent, err := h.redis.RecentChats(r.Context(), chi.URLParam(r, "userId"), limit)
	if err != nil {
		h.logger.Warn().Err(err).Msg("recent chats lookup failed")
		h.Error(w, http.StatusInternalServerError, "recent chats unavailable")
		return
	}
	h.JSON(w, http.StatusOK, recent)
}
