package cmd

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-indexer/internal/constants"
	"github.com/kozaktomas/photo-indexer/internal/database"
	"github.com/kozaktomas/photo-indexer/internal/database/postgres"
	"github.com/kozaktomas/photo-indexer/internal/geocode"
)

var gazetteerCmd = &cobra.Command{
	Use:   "gazetteer",
	Short: "Manage the reverse-geocoding gazetteer",
}

var gazetteerLoadCmd = &cobra.Command{
	Use:   "load FILE",
	Short: "Load a GeoNames cities dump into the gazetteer",
	Long: `Load a tab-separated GeoNames dump (cities500.txt, cities1000.txt, ...)
into the gazetteer table. Rows are upserted by geoname id, so loading a newer
dump over an older one updates it in place. Gzipped files are accepted.

Example:
  photo-indexer gazetteer load cities1000.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runGazetteerLoad,
}

func init() {
	rootCmd.AddCommand(gazetteerCmd)
	gazetteerCmd.AddCommand(gazetteerLoadCmd)
}

func openGazetteerFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gazetteer file: %w", err)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	return struct {
		io.Reader
		io.Closer
	}{gz, f}, nil
}

func runGazetteerLoad(cmd *cobra.Command, args []string) error {
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

	r, err := openGazetteerFile(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	repo := postgres.NewGazetteerRepository(pool)
	batch := make([]database.GazetteerPoint, 0, constants.GazetteerLoadBatch)
	written := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := repo.LoadPoints(ctx, batch)
		if err != nil {
			return err
		}
		written += n
		batch = batch[:0]
		fmt.Printf("\rLoaded %d points", written)
		return nil
	}

	parsed, err := geocode.ParseGeoNames(r, func(p database.GazetteerPoint) error {
		batch = append(batch, p)
		if len(batch) >= constants.GazetteerLoadBatch {
			return flush()
		}
		return nil
	})
	if err != nil {
		fmt.Println()
		return fmt.Errorf("load gazetteer: %w", err)
	}
	if err := flush(); err != nil {
		fmt.Println()
		return fmt.Errorf("load gazetteer: %w", err)
	}

	total, err := repo.CountPoints(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nParsed %d rows, gazetteer now holds %d points\n", parsed, total)
	return nil
}
