package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/kozaktomas/photo-indexer/internal/database"
	"github.com/kozaktomas/photo-indexer/internal/enrich"
	"github.com/kozaktomas/photo-indexer/internal/ingest"
)

// PassRunner starts background enrichment passes.
type PassRunner interface {
	Trigger(collectionID string) bool
	Last() *enrich.PassResult
}

// StatsSource summarizes enrichment progress.
type StatsSource interface {
	Stats(ctx context.Context) ([]database.CollectionStats, error)
}

// EnrichHandler exposes enrichment control and progress.
type EnrichHandler struct {
	runner PassRunner
	stats  StatsSource
	logger *zap.Logger
}

func NewEnrichHandler(runner PassRunner, stats StatsSource, logger *zap.Logger) *EnrichHandler {
	return &EnrichHandler{runner: runner, stats: stats, logger: logger}
}

// Start handles POST /api/v1/enrich[?collection=ID].
func (h *EnrichHandler) Start(w http.ResponseWriter, r *http.Request) {
	collectionID := r.URL.Query().Get("collection")
	if collectionID != "" {
		if err := ingest.ValidateCollectionID(collectionID); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if !h.runner.Trigger(collectionID) {
		respondError(w, http.StatusConflict, "an enrichment pass is already running")
		return
	}
	h.logger.Info("enrichment pass requested", zap.String("collection_id", collectionID))
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	Collections []database.CollectionStats `json:"collections"`
	LastPass    *enrich.PassResult         `json:"last_pass"`
}

// Stats handles GET /api/v1/stats.
func (h *EnrichHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		respondErr(w, h.logger, "failed to load stats", err)
		return
	}
	if stats == nil {
		stats = []database.CollectionStats{}
	}
	respondJSON(w, http.StatusOK, StatsResponse{
		Collections: stats,
		LastPass:    h.runner.Last(),
	})
}
