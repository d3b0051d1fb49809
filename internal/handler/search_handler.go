package handler

import (
	"context"
	"net/http"
	"strings"

	"commerceflow/internal/model"

	"github.com/rs/zerolog"
)

// SearchReader queries the search index.
type SearchReader interface {
	Search(ctx context.Context, query string, limit int) ([]model.SearchDocument, error)
}

// SearchHandler handles product search.
type SearchHandler struct {
	index  SearchReader
	logger zerolog.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(index SearchReader, logger zerolog.Logger) *SearchHandler {
	return &SearchHandler{
		index:  index,
		logger: logger.With().Str("handler", "search").Logger(),
	}
}

// Search handles GET /api/search?q=...&limit=...
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, r, badRequest(model.ErrCodeMissingField, "q is required"), h.logger)
		return
	}

	limit, err := intQuery(r, "limit", 20)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	limit = min(max(limit, 1), 100)

	docs, err := h.index.Search(r.Context(), query, limit)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	if docs == nil {
		docs = []model.SearchDocument{}
	}

	writeJSON(w, http.StatusOK, docs)
}
