package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-indexer/internal/ai"
	"github.com/kozaktomas/photo-indexer/internal/database/postgres"
	"github.com/kozaktomas/photo-indexer/internal/enrich"
	"github.com/kozaktomas/photo-indexer/internal/observability"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Run one enrichment pass",
	Long: `Run a single enrichment pass over photos that are missing a description,
an embedding, or a place while having GPS coordinates.

Only the missing fields are computed. Photos that fail are left untouched and
picked up again by the next pass.

Examples:
  # Enrich every collection
  photo-indexer enrich

  # Enrich one collection and print the summary as JSON
  photo-indexer enrich --collection wedding-2024 --json`,
	Args: cobra.NoArgs,
	RunE: runEnrich,
}

func init() {
	rootCmd.AddCommand(enrichCmd)

	enrichCmd.Flags().String("collection", "", "Only enrich this collection (default: all)")
	enrichCmd.Flags().Int("batch-size", 0, "Photos processed concurrently (overrides ENRICH_BATCH_SIZE)")
	enrichCmd.Flags().Bool("json", false, "Output as JSON")
}

func runEnrich(cmd *cobra.Command, args []string) error {
	collectionID := mustGetString(cmd, "collection")
	jsonOutput := mustGetBool(cmd, "json")

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if n := mustGetInt(cmd, "batch-size"); n > 0 {
		cfg.Enrich.BatchSize = n
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, err := newObjectStore(cfg)
	if err != nil {
		return err
	}
	describer, err := newDescriber(ctx, cfg)
	if err != nil {
		return err
	}
	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}
	locator, err := newLocator(ctx, cfg, postgres.NewGazetteerRepository(pool), logger)
	if err != nil {
		return err
	}

	coordinator, err := enrich.NewCoordinator(enrich.Deps{
		Photos:    postgres.NewPhotoRepository(pool),
		Objects:   store,
		Describer: describer,
		Embedder:  embedder,
		Locator:   locator,
		Logger:    logger,
		Metrics:   observability.NewNopMetrics(),
	}, enrichOptions(cfg))
	if err != nil {
		return err
	}

	var progress enrich.ProgressFunc
	if !jsonOutput {
		progress = newProgressBar("Enriching photos")
	}

	result, err := coordinator.RunPass(ctx, collectionID, progress)
	if err != nil {
		return fmt.Errorf("enrichment pass: %w", err)
	}

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Printf("Pass %s finished in %s\n", result.ID, result.Duration.Round(time.Millisecond))
	fmt.Printf("  Selected:  %d\n", result.Selected)
	fmt.Printf("  Enriched:  %d\n", result.Enriched)
	fmt.Printf("  Unchanged: %d\n", result.Unchanged)
	fmt.Printf("  Failed:    %d\n", result.Failed)
	if result.Skipped > 0 {
		fmt.Printf("  Skipped:   %d\n", result.Skipped)
	}
	if reporter, ok := describer.(ai.UsageReporter); ok {
		usage := reporter.GetUsage()
		if usage.Requests > 0 {
			fmt.Printf("Vision usage: %d requests, %d input / %d output tokens, $%.4f\n",
				usage.Requests, usage.InputTokens, usage.OutputTokens, usage.TotalCost)
		}
	}
	return nil
}
