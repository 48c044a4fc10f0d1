package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-indexer/internal/ai"
	"github.com/kozaktomas/photo-indexer/internal/config"
	"github.com/kozaktomas/photo-indexer/internal/database/postgres"
	"github.com/kozaktomas/photo-indexer/internal/enrich"
	"github.com/kozaktomas/photo-indexer/internal/geocode"
	"github.com/kozaktomas/photo-indexer/internal/objectstore"
	"github.com/kozaktomas/photo-indexer/internal/observability"
)

// loadConfig reads the environment and builds the process logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg := config.Load()
	if level := mustGetString(cmd, "log-level"); level != "" {
		cfg.Logging.Level = level
	}
	logger, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openDatabase connects to PostgreSQL and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*postgres.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	pool, applied, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	for _, name := range applied {
		logger.Info("applied migration", zap.String("migration", name))
	}
	return pool, nil
}

func newObjectStore(cfg *config.Config) (*objectstore.MinIOStore, error) {
	store, err := objectstore.NewMinIOStore(cfg.ObjectStore, "")
	if err != nil {
		return nil, fmt.Errorf("object store: %w", err)
	}
	return store, nil
}

// newDescriber picks the vision provider named by VISION_PROVIDER. Prices are
// looked up by the model the provider ends up using, so an unset VISION_MODEL
// is charged at the provider default's rate.
func newDescriber(ctx context.Context, cfg *config.Config) (ai.Describer, error) {
	describer, err := visionProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if priced, ok := describer.(ai.Priced); ok {
		pricing := cfg.GetModelPricing(describer.Name())
		priced.SetPricing(ai.RequestPricing{Input: pricing.Input, Output: pricing.Output})
	}
	return describer, nil
}

func visionProvider(ctx context.Context, cfg *config.Config) (ai.Describer, error) {
	switch cfg.Vision.Provider {
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN environment variable is required")
		}
		return ai.NewOpenAIDescriber(ai.OpenAIOptions{
			APIKey:       cfg.OpenAI.Token,
			BaseURL:      cfg.OpenAI.BaseURL,
			Model:        cfg.Vision.Model,
			MaxImageSize: cfg.Vision.MaxImageSize,
		}), nil
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, errors.New("GEMINI_API_KEY environment variable is required")
		}
		return ai.NewGeminiDescriber(ctx, ai.GeminiOptions{
			APIKey:       cfg.Gemini.APIKey,
			Model:        cfg.Vision.Model,
			MaxImageSize: cfg.Vision.MaxImageSize,
		})
	case "ollama":
		return ai.NewOllamaDescriber(cfg.Ollama.URL, cfg.Vision.Model, cfg.Vision.MaxImageSize), nil
	default:
		return nil, fmt.Errorf("unknown VISION_PROVIDER %q (expected openai, gemini or ollama)", cfg.Vision.Provider)
	}
}

// newEmbedder picks the embedding provider named by EMBEDDING_PROVIDER.
func newEmbedder(cfg *config.Config) (ai.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		if cfg.OpenAI.Token == "" {
			return nil, errors.New("OPENAI_TOKEN environment variable is required")
		}
		return ai.NewOpenAIEmbedder(ai.OpenAIOptions{
			APIKey:  cfg.OpenAI.Token,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.Embedding.Model,
		}, cfg.Embedding.Dim), nil
	case "server":
		return ai.NewServerEmbedder(cfg.Embedding.URL, cfg.Embedding.Model, cfg.Embedding.Dim), nil
	default:
		return nil, fmt.Errorf("unknown EMBEDDING_PROVIDER %q (expected openai or server)", cfg.Embedding.Provider)
	}
}

// newLocator either loads the gazetteer into memory once or queries it per lookup.
func newLocator(ctx context.Context, cfg *config.Config, gazetteer *postgres.GazetteerRepository, logger *zap.Logger) (geocode.Locator, error) {
	switch cfg.Geocoder.Mode {
	case "memory":
		index, err := geocode.LoadIndex(ctx, gazetteer)
		if err != nil {
			return nil, err
		}
		if index.Len() == 0 {
			logger.Warn("gazetteer is empty, places will not be assigned until it is loaded")
		} else {
			logger.Info("gazetteer loaded", zap.Int("points", index.Len()))
		}
		return index, nil
	case "database":
		return geocode.NewStoreLocator(gazetteer), nil
	default:
		return nil, fmt.Errorf("unknown GEOCODER_MODE %q (expected memory or database)", cfg.Geocoder.Mode)
	}
}

func enrichOptions(cfg *config.Config) enrich.Options {
	return enrich.Options{
		BatchSize:       cfg.Enrich.BatchSize,
		DownloadTimeout: cfg.Enrich.DownloadTimeout,
		DescribeTimeout: cfg.Vision.Timeout,
		EmbedTimeout:    cfg.Embedding.Timeout,
		GeocodeTimeout:  cfg.Enrich.GeocodeTimeout,
	}
}

// newProgressBar returns a progress callback that creates its bar on first use,
// once the total is known.
func newProgressBar(description string) func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(description),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("photos"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionSetPredictTime(true),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
		if done == total {
			_ = bar.Finish()
			fmt.Println()
		}
	}
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
