// Package search ranks the photos of a collection against a free-text query.
package search

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/photo-indexer/internal/ai"
	"github.com/kozaktomas/photo-indexer/internal/database"
	"github.com/kozaktomas/photo-indexer/internal/observability"
)

const (
	DefaultTopK          = 20
	DefaultMinSimilarity = 0.3
)

// PhotoSource lists the embedded photos of a collection.
type PhotoSource interface {
	ListEmbedded(ctx context.Context, collectionID string) ([]database.Photo, error)
}

// Options limits a search. TopK <= 0 uses DefaultTopK.
type Options struct {
	TopK          int
	MinSimilarity float64
}

// Result is one ranked photo.
type Result struct {
	PhotoID        string  `json:"photo_id"`
	FileName       string  `json:"file_name"`
	SourceLocation string  `json:"source_location"`
	Description    string  `json:"description"`
	Similarity     float64 `json:"similarity"`
}

type Engine struct {
	photos   PhotoSource
	embedder ai.Embedder
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewEngine(photos PhotoSource, embedder ai.Embedder, logger *zap.Logger, metrics *observability.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &Engine{photos: photos, embedder: embedder, logger: logger, metrics: metrics}
}

// Search embeds the query and returns the photos whose cosine similarity is
// strictly greater than opts.MinSimilarity, best first, at most opts.TopK.
// Equal similarities keep the stored order. An empty query returns no results
// without calling the embedder.
func (e *Engine) Search(ctx context.Context, collectionID, query string, opts Options) ([]Result, error) {
	start := time.Now()
	defer func() {
		e.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}()

	query = strings.TrimSpace(query)
	if query == "" {
		e.metrics.SearchRequests.WithLabelValues("empty").Inc()
		return []Result{}, nil
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.metrics.SearchRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embed query: %w", err)
	}

	photos, err := e.photos.ListEmbedded(ctx, collectionID)
	if err != nil {
		e.metrics.SearchRequests.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list photos: %w", err)
	}

	results := Rank(queryVec, photos, opts)
	e.metrics.SearchRequests.WithLabelValues("ok").Inc()
	e.logger.Debug("search",
		zap.String("collection_id", collectionID),
		zap.String("query", query),
		zap.Int("candidates", len(photos)),
		zap.Int("results", len(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results, nil
}

// Rank scores photos against queryVec. Photos whose embedding has a
// different dimension score 0 and are filtered out by any non-negative threshold.
func Rank(queryVec []float32, photos []database.Photo, opts Options) []Result {
	results := make([]Result, 0, len(photos))
	for _, p := range photos {
		sim := database.CosineSimilarity(queryVec, p.Embedding)
		if sim <= opts.MinSimilarity {
			continue
		}
		results = append(results, Result{
			PhotoID:        p.ID,
			FileName:       p.FileName,
			SourceLocation: p.SourceLocation,
			Description:    p.Description,
			Similarity:     sim,
		})
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})

	if opts.TopK > 0 && len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results
}
