package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-indexer/internal/constants"
	"github.com/kozaktomas/photo-indexer/internal/database/postgres"
	"github.com/kozaktomas/photo-indexer/internal/errkind"
	"github.com/kozaktomas/photo-indexer/internal/ingest"
)

var uploadCmd = &cobra.Command{
	Use:   "upload COLLECTION FILE...",
	Short: "Upload local images into a collection",
	Long: `Store local image files in the bucket under COLLECTION/ and register them.
Files whose name is already registered in the collection are skipped and the
stored object is left untouched.

Example:
  photo-indexer upload wedding-2024 ~/Pictures/wedding/*.jpg`,
	Args: cobra.MinimumNArgs(2),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	collectionID := args[0]
	if err := ingest.ValidateCollectionID(collectionID); err != nil {
		return err
	}
	files := args[1:]

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
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
		cfg.ObjectStore.PublicBaseURL, constants.ImportConcurrency, logger)

	var registered, existing, failed int
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			fmt.Printf("  %s: %v\n", file, err)
			failed++
			continue
		}
		photo, inserted, err := registrar.Upload(ctx, collectionID, filepath.Base(file), data)
		if errors.Is(err, errkind.ErrConflict) {
			existing++
			fmt.Printf("  %s: already registered\n", file)
			continue
		}
		if err != nil {
			fmt.Printf("  %s: %v\n", file, err)
			failed++
			continue
		}
		if inserted {
			registered++
			fmt.Printf("  %s -> %s\n", file, photo.SourceLocation)
		} else {
			existing++
			fmt.Printf("  %s -> %s (already registered)\n", file, photo.SourceLocation)
		}
	}

	fmt.Printf("Uploaded %d files: %d registered, %d already known, %d failed\n",
		len(files), registered, existing, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(files))
	}
	return nil
}
