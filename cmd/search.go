package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-indexer/internal/database/postgres"
	"github.com/kozaktomas/photo-indexer/internal/observability"
	"github.com/kozaktomas/photo-indexer/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search a collection with a natural-language query",
	Long: `Embed the query and rank the collection's described photos by cosine
similarity. Only photos scoring strictly above the threshold are listed.

Examples:
  photo-indexer search --collection wedding-2024 "bride dancing with her father"
  photo-indexer search --collection wedding-2024 --limit 5 --json "cake"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("collection", "", "Collection to search (required)")
	searchCmd.Flags().Int("limit", 0, "Maximum number of results (default SEARCH_TOP_K)")
	searchCmd.Flags().Float64("min-similarity", -1, "Similarity threshold (default SEARCH_MIN_SIMILARITY)")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	collectionID := mustGetString(cmd, "collection")
	if collectionID == "" {
		return errors.New("--collection is required")
	}
	jsonOutput := mustGetBool(cmd, "json")
	query := strings.Join(args, " ")

	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	opts := search.Options{TopK: cfg.Search.TopK, MinSimilarity: cfg.Search.MinSimilarity}
	if limit := mustGetInt(cmd, "limit"); limit > 0 {
		opts.TopK = limit
	}
	if minSim := mustGetFloat64(cmd, "min-similarity"); minSim >= 0 {
		opts.MinSimilarity = minSim
	}

	ctx := context.Background()
	pool, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	engine := search.NewEngine(postgres.NewPhotoRepository(pool), embedder, logger, observability.NewNopMetrics())
	results, err := engine.Search(ctx, collectionID, query, opts)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if jsonOutput {
		return outputJSON(results)
	}

	if len(results) == 0 {
		fmt.Println("No matching photos.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%2d. %.3f  %s\n", i+1, r.Similarity, r.FileName)
		fmt.Printf("    %s\n", r.Description)
		fmt.Printf("    %s\n", r.SourceLocation)
	}
	return nil
}
