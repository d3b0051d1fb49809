package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"commerceflow/internal/messaging"
	"commerceflow/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// DeadLetterStore lists and replays dead-lettered deliveries.
type DeadLetterStore interface {
	ListDeadLetters(ctx context.Context, limit int) ([]messaging.StoredDeadLetter, error)
	Replay(ctx context.Context, storageID int64) error
}

// AdminHandler exposes broker maintenance.
type AdminHandler struct {
	deadLetters DeadLetterStore
	logger      zerolog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deadLetters DeadLetterStore, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		deadLetters: deadLetters,
		logger:      logger.With().Str("handler", "admin").Logger(),
	}
}

// ListDeadLetters handles GET /api/admin/dead-letters.
func (h *AdminHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 50)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	letters, err := h.deadLetters.ListDeadLetters(r.Context(), min(max(limit, 1), 500))
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	if letters == nil {
		letters = []messaging.StoredDeadLetter{}
	}

	writeJSON(w, http.StatusOK, letters)
}

// Replay handles POST /api/admin/dead-letters/{id}/replay.
func (h *AdminHandler) Replay(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, badRequest(model.ErrCodeValidation, "invalid dead letter id"), h.logger)
		return
	}

	if err := h.deadLetters.Replay(r.Context(), id); err != nil {
		if errors.Is(err, messaging.ErrDeadLetterNotFound) {
			writeError(w, r, model.NewDomainError(model.ErrCodeNotFound, err.Error()), h.logger)
			return
		}
		writeError(w, r, err, h.logger)
		return
	}

	h.logger.Info().Int64("dead_letter_id", id).Msg("dead letter replayed")
	w.WriteHeader(http.StatusNoContent)
}
