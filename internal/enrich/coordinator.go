// Package enrich fills in missing descriptions, embeddings and places of
// stored photos.
//
// A pass selects every photo missing at least one derived field, processes
// them in fixed-size batches (photos of one batch concurrently, batches one
// after another) and writes each photo's staged fields in a single update.
// Any failure while processing a photo skips that photo for the pass; it is
// selected again by the next pass.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-indexer/internal/ai"
	"github.com/kozaktomas/photo-indexer/internal/database"
	"github.com/kozaktomas/photo-indexer/internal/errkind"
	"github.com/kozaktomas/photo-indexer/internal/geocode"
	"github.com/kozaktomas/photo-indexer/internal/observability"
)

// PhotoStore is the subset of database.PhotoWriter a pass needs.
type PhotoStore interface {
	ListPending(ctx context.Context, collectionID string) ([]database.Photo, error)
	EmbeddingDim(ctx context.Context, collectionID string) (int, error)
	ApplyPatch(ctx context.Context, id string, patch *database.PhotoPatch) error
}

// Downloader fetches original image bytes by source location.
type Downloader interface {
	Download(ctx context.Context, location string) ([]byte, error)
}

// Outcome of processing one photo.
type Outcome string

const (
	OutcomeEnriched  Outcome = "enriched"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Options tunes a Coordinator. Zero timeouts disable the per-call deadline.
type Options struct {
	BatchSize       int
	DownloadTimeout time.Duration
	DescribeTimeout time.Duration
	EmbedTimeout    time.Duration
	GeocodeTimeout  time.Duration
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		BatchSize:       10,
		DownloadTimeout: 60 * time.Second,
		DescribeTimeout: 60 * time.Second,
		EmbedTimeout:    30 * time.Second,
		GeocodeTimeout:  10 * time.Second,
	}
}

// Deps are the collaborators of a Coordinator, built once per process.
type Deps struct {
	Photos    PhotoStore
	Objects   Downloader
	Describer ai.Describer
	Embedder  ai.Embedder
	Locator   geocode.Locator
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// PassResult summarizes one enrichment pass.
type PassResult struct {
	ID        string        `json:"id"`
	Selected  int           `json:"selected"`
	Enriched  int           `json:"enriched"`
	Unchanged int           `json:"unchanged"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Batches   int           `json:"batches"`
	Duration  time.Duration `json:"duration"`
}

func (r *PassResult) add(o Outcome) {
	switch o {
	case OutcomeEnriched:
		r.Enriched++
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeFailed:
		r.Failed++
	case OutcomeSkipped:
		r.Skipped++
	}
}

// ProgressFunc is called after every processed photo with the number done so far.
type ProgressFunc func(done, total int)

// Coordinator runs enrichment passes. It is safe for concurrent use;
// a photo being processed by one pass is skipped by any other pass of the
// same Coordinator.
type Coordinator struct {
	deps     Deps
	opts     Options
	inflight sync.Map
	// dimensionality chosen by the first embedding of a collection that had none stored
	dims sync.Map
}

func NewCoordinator(deps Deps, opts Options) (*Coordinator, error) {
	if deps.Photos == nil || deps.Objects == nil || deps.Describer == nil || deps.Embedder == nil || deps.Locator == nil {
		return nil, errors.New("enrich: photos, objects, describer, embedder and locator are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NewNopMetrics()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	return &Coordinator{deps: deps, opts: opts}, nil
}

// RunPass enriches every pending photo of a collection, or of all collections
// when collectionID is empty. Only a failure to list pending photos or a
// canceled context ends the pass with an error.
func (c *Coordinator) RunPass(ctx context.Context, collectionID string, progress ProgressFunc) (*PassResult, error) {
	start := time.Now()
	result := &PassResult{ID: uuid.NewString()}
	logger := c.deps.Logger.With(zap.String("pass_id", result.ID), zap.String("collection_id", collectionID))

	defer func() {
		result.Duration = time.Since(start)
		c.deps.Metrics.PassDuration.Observe(result.Duration.Seconds())
	}()

	photos, err := c.deps.Photos.ListPending(ctx, collectionID)
	if err != nil {
		return result, fmt.Errorf("list pending photos: %w", err)
	}
	result.Selected = len(photos)
	c.deps.Metrics.PendingPhotos.Set(float64(len(photos)))

	if len(photos) == 0 {
		logger.Info("no photos need processing")
		return result, nil
	}
	logger.Info("enrichment pass started", zap.Int("selected", len(photos)), zap.Int("batch_size", c.opts.BatchSize))

	var mu sync.Mutex
	done := 0

	for i := 0; i < len(photos); i += c.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			logger.Warn("enrichment pass interrupted", zap.Int("processed", done), zap.Error(err))
			return result, err
		}

		batch := photos[i:min(i+c.opts.BatchSize, len(photos))]
		var wg sync.WaitGroup
		for _, photo := range batch {
			wg.Go(func() {
				outcome := c.processPhoto(ctx, logger, photo)

				mu.Lock()
				result.add(outcome)
				done++
				if progress != nil {
					progress(done, len(photos))
				}
				mu.Unlock()
			})
		}
		wg.Wait()
		result.Batches++
		logger.Debug("batch done", zap.Int("batch", result.Batches), zap.Int("size", len(batch)))
	}

	logger.Info("enrichment pass finished",
		zap.Int("enriched", result.Enriched),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// processPhoto claims the photo, enriches it and records the outcome.
func (c *Coordinator) processPhoto(ctx context.Context, logger *zap.Logger, photo database.Photo) Outcome {
	if _, busy := c.inflight.LoadOrStore(photo.ID, struct{}{}); busy {
		c.deps.Metrics.PhotosEnriched.WithLabelValues(string(OutcomeSkipped)).Inc()
		return OutcomeSkipped
	}
	defer c.inflight.Delete(photo.ID)

	outcome, patch, err := c.EnrichPhoto(ctx, photo)
	c.deps.Metrics.PhotosEnriched.WithLabelValues(string(outcome)).Inc()

	switch outcome {
	case OutcomeFailed:
		logger.Warn("skipping photo",
			zap.String("photo_id", photo.ID),
			zap.String("file_name", photo.FileName),
			zap.String("error_kind", string(errkind.Classify(err))),
			zap.Error(err),
		)
	case OutcomeEnriched:
		fields := []zap.Field{
			zap.String("photo_id", photo.ID),
			zap.Strings("fields", patch.Fields()),
		}
		if patch.Description != nil {
			fields = append(fields, zap.String("description", truncate(*patch.Description, 80)))
		}
		logger.Info("photo enriched", fields...)
	}
	return outcome
}

// EnrichPhoto computes every missing derived field of one photo and persists
// them in a single write. The first failing step aborts the photo with no
// write. A photo with nothing to compute is not written at all.
func (c *Coordinator) EnrichPhoto(ctx context.Context, photo database.Photo) (Outcome, *database.PhotoPatch, error) {
	patch := &database.PhotoPatch{}
	description := photo.Description

	if photo.NeedsDescription() {
		data, err := c.download(ctx, photo.SourceLocation)
		if err != nil {
			return OutcomeFailed, nil, err
		}
		desc, err := c.describe(ctx, data)
		if err != nil {
			return OutcomeFailed, nil, err
		}
		description = desc
		patch.Description = &desc
	}

	if photo.NeedsEmbedding() && description != "" {
		vec, err := c.embed(ctx, description)
		if err != nil {
			return OutcomeFailed, nil, err
		}
		if err := c.checkDim(ctx, photo.CollectionID, vec); err != nil {
			return OutcomeFailed, nil, err
		}
		patch.Embedding = vec
		patch.EmbeddingSource = description
		patch.EmbeddingModel = c.deps.Embedder.Model()
	}

	if photo.NeedsPlace() {
		place, found, err := c.locate(ctx, *photo.Latitude, *photo.Longitude)
		if err != nil {
			return OutcomeFailed, nil, err
		}
		if found {
			patch.Place = &place
		}
	}

	if patch.IsEmpty() {
		return OutcomeUnchanged, patch, nil
	}

	stop := c.timer("write")
	err := c.deps.Photos.ApplyPatch(ctx, photo.ID, patch)
	stop()
	if err != nil {
		return OutcomeFailed, nil, fmt.Errorf("write photo: %w", err)
	}
	return OutcomeEnriched, patch, nil
}

// checkDim rejects a vector whose length differs from the dimensionality
// already used by the collection's stored embeddings.
func (c *Coordinator) checkDim(ctx context.Context, collectionID string, vec []float32) error {
	dim, err := c.deps.Photos.EmbeddingDim(ctx, collectionID)
	if err != nil {
		return fmt.Errorf("embedding dimension: %w", err)
	}
	if dim == 0 {
		pinned, _ := c.dims.LoadOrStore(collectionID, len(vec))
		dim = pinned.(int)
	}
	if len(vec) != dim {
		return errkind.Wrap(errkind.ErrInference,
			fmt.Sprintf("embedding has %d dimensions, collection %s uses %d", len(vec), collectionID, dim), nil)
	}
	return nil
}

func (c *Coordinator) download(ctx context.Context, location string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, c.opts.DownloadTimeout)
	defer cancel()
	defer c.timer("download")()

	data, err := c.deps.Objects.Download(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", location, err)
	}
	if len(data) == 0 {
		return nil, errkind.Wrap(errkind.ErrInference, "downloaded image is empty", nil)
	}
	return data, nil
}

func (c *Coordinator) describe(ctx context.Context, data []byte) (string, error) {
	ctx, cancel := withTimeout(ctx, c.opts.DescribeTimeout)
	defer cancel()
	defer c.timer("describe")()

	desc, err := c.deps.Describer.Describe(ctx, data)
	if err != nil {
		return "", fmt.Errorf("describe: %w", err)
	}
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return "", errkind.Wrap(errkind.ErrInference, "describe: empty description", nil)
	}
	return desc, nil
}

func (c *Coordinator) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, c.opts.EmbedTimeout)
	defer cancel()
	defer c.timer("embed")()

	vec, err := c.deps.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vec) == 0 {
		return nil, errkind.Wrap(errkind.ErrInference, "embed: empty vector", nil)
	}
	return vec, nil
}

// locate reports found=false for an empty gazetteer, which leaves the place unset.
func (c *Coordinator) locate(ctx context.Context, lat, lon float64) (database.Place, bool, error) {
	ctx, cancel := withTimeout(ctx, c.opts.GeocodeTimeout)
	defer cancel()
	defer c.timer("geocode")()

	place, err := c.deps.Locator.Locate(ctx, lat, lon)
	if errors.Is(err, errkind.ErrNotFound) {
		return database.Place{}, false, nil
	}
	if err != nil {
		return database.Place{}, false, fmt.Errorf("geocode: %w", err)
	}
	return place, true, nil
}

func (c *Coordinator) timer(stage string) func() {
	start := time.Now()
	return func() {
		c.deps.Metrics.InferenceDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
