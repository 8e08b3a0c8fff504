package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/aswatji/serverchat/internal/realtime"
	"github.com/aswatji/serverchat/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db       store.DataStore
	redis    *store.RedisStore
	engine   *realtime.Engine
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewHandler creates a new Handler. redis and engine may be nil.
func NewHandler(db store.DataStore, redis *store.RedisStore, engine *realtime.Engine, logger zerolog.Logger) *Handler {
	return &Handler{
		db:       db,
		redis:    redis,
		engine:   engine,
		validate: newValidator(),
		logger:   logger.With().Str("component", "http").Logger(),
	}
}

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into v and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		h.Error(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// storeError maps store sentinels onto HTTP responses.
func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.Error(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, store.ErrConflict):
		h.Error(w, http.StatusConflict, "email already exists")
	case errors.Is(err, store.ErrConstraint):
		h.Error(w, http.StatusBadRequest, "referenced data does not exist")
	case errors.Is(err, store.ErrNotParticipant):
		h.Error(w, http.StatusBadRequest, "sender is not a participant of the chat")
	default:
		h.logger.Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("database error")
		h.Error(w, http.StatusInternalServerError, "database error")
	}
}

// validationMessage turns the first validator failure into a client message.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "validation failed"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return "invalid email format"
	case "nefield":
		return "cannot create chat with yourself"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must not be empty", fe.Field())
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

// sanitizeName trims and limits name to 100 characters, removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 characters
	if runes := []rune(name); len(runes) > 100 {
		name = string(runes[:100])
	}

	return name
}
