package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-indexer/internal/database"
	"github.com/kozaktomas/photo-indexer/internal/database/postgres"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show enrichment progress per collection",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().Bool("json", false, "Output as JSON")
}

// StatsResult is the JSON output of the stats command.
type StatsResult struct {
	Collections     []database.CollectionStats `json:"collections"`
	GazetteerPoints int                        `json:"gazetteer_points"`
	Migrations      []string                   `json:"migrations"`
}

func runStats(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")

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

	collections, err := postgres.NewPhotoRepository(pool).Stats(ctx)
	if err != nil {
		return err
	}
	points, err := postgres.NewGazetteerRepository(pool).CountPoints(ctx)
	if err != nil {
		return err
	}
	migrations, err := pool.MigrationsApplied(ctx)
	if err != nil {
		return err
	}

	result := StatsResult{Collections: collections, GazetteerPoints: points, Migrations: migrations}
	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Printf("%-24s %8s %10s %9s %8s %9s\n", "COLLECTION", "PHOTOS", "DESCRIBED", "EMBEDDED", "WITH GPS", "LOCATED")
	for _, c := range collections {
		fmt.Printf("%-24s %8d %10d %9d %8d %9d\n", c.CollectionID, c.Total, c.Described, c.Embedded, c.WithGPS, c.Located)
	}
	fmt.Printf("\nGazetteer points: %d\n", points)
	fmt.Printf("Migrations:       %d applied\n", len(migrations))
	return nil
}
