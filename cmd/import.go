package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-indexer/internal/constants"
	"github.com/kozaktomas/photo-indexer/internal/database/postgres"
	"github.com/kozaktomas/photo-indexer/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import COLLECTION",
	Short: "Register images already stored in the bucket under COLLECTION/",
	Long: `List the bucket prefix of a collection and register every image that is
not in the catalog yet. GPS coordinates and capture time are read from EXIF.
Newly registered photos are enriched by the next pass.

Example:
  photo-indexer import wedding-2024`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Int("concurrency", constants.ImportConcurrency, "Objects downloaded in parallel")
	importCmd.Flags().Bool("json", false, "Output as JSON")
}

func runImport(cmd *cobra.Command, args []string) error {
	collectionID := args[0]
	if err := ingest.ValidateCollectionID(collectionID); err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

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

	registrar := ingest.NewRegistrar(postgres.NewPhotoRepository(pool), store,
		cfg.ObjectStore.PublicBaseURL, mustGetInt(cmd, "concurrency"), logger)

	var progress func(done, total int)
	if !jsonOutput {
		progress = newProgressBar("Importing")
	}

	result, err := registrar.Import(ctx, collectionID, progress)
	if err != nil {
		return fmt.Errorf("import %s: %w", collectionID, err)
	}

	if jsonOutput {
		return outputJSON(result)
	}
	fmt.Printf("Listed %d objects: %d registered, %d already known, %d ignored, %d failed\n",
		result.Listed, result.Registered, result.Existing, result.Ignored, result.Failed)
	return nil
}
