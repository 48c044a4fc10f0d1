package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-indexer/internal/constants"
	"github.com/kozaktomas/photo-indexer/internal/search"
)

// Searcher ranks the photos of a collection against a text query.
type Searcher interface {
	Search(ctx context.Context, collectionID, query string, opts search.Options) ([]search.Result, error)
}

type SearchHandler struct {
	engine   Searcher
	defaults search.Options
	logger   *zap.Logger
}

func NewSearchHandler(engine Searcher, defaults search.Options, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{engine: engine, defaults: defaults, logger: logger}
}

// imageResult is the public search response item.
type imageResult struct {
	Image string `json:"image"`
}

// Search handles GET /api/{collectionId}/search?q=...&limit=N and returns
// the matching source locations, best first.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	results, ok := h.run(w, r)
	if !ok {
		return
	}
	out := make([]imageResult, 0, len(results))
	for _, res := range results {
		out = append(out, imageResult{Image: res.SourceLocation})
	}
	respondJSON(w, http.StatusOK, out)
}

// Detailed handles GET /api/v1/collections/{collectionId}/search and
// includes ids, descriptions and similarities.
func (h *SearchHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	results, ok := h.run(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *SearchHandler) run(w http.ResponseWriter, r *http.Request) ([]search.Result, bool) {
	collectionID := chi.URLParam(r, "collectionId")
	query := r.URL.Query().Get("q")

	opts := h.defaults
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return nil, false
		}
		opts.TopK = min(limit, constants.MaxSearchLimit)
	}

	results, err := h.engine.Search(r.Context(), collectionID, query, opts)
	if err != nil {
		h.logger.Warn("search failed",
			zap.String("collection_id", sanitizeForLog(collectionID)),
			zap.String("query", sanitizeForLog(query)),
		)
		respondErr(w, h.logger, "search failed", err)
		return nil, false
	}
	return results, true
}
