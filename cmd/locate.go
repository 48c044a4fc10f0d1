package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/photo-indexer/internal/database/postgres"
	"github.com/kozaktomas/photo-indexer/internal/errkind"
)

var locateCmd = &cobra.Command{
	Use:   "locate LAT LON",
	Short: "Print the nearest gazetteer place for a coordinate",
	Long: `Reverse-geocode a coordinate against the loaded gazetteer.

Example:
  photo-indexer locate 49.1951 16.6068`,
	Args: cobra.ExactArgs(2),
	RunE: runLocate,
}

func init() {
	rootCmd.AddCommand(locateCmd)

	locateCmd.Flags().Bool("json", false, "Output as JSON")
}

func parseCoordinates(latArg, lonArg string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(latArg, 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, errkind.Wrap(errkind.ErrValidation, fmt.Sprintf("invalid latitude %q", latArg), nil)
	}
	lon, err := strconv.ParseFloat(lonArg, 64)
	if err != nil || lon < -180 || lon > 180 {
		return 0, 0, errkind.Wrap(errkind.ErrValidation, fmt.Sprintf("invalid longitude %q", lonArg), nil)
	}
	return lat, lon, nil
}

func runLocate(cmd *cobra.Command, args []string) error {
	lat, lon, err := parseCoordinates(args[0], args[1])
	if err != nil {
		return err
	}
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

	locator, err := newLocator(ctx, cfg, postgres.NewGazetteerRepository(pool), logger)
	if err != nil {
		return err
	}

	place, err := locator.Locate(ctx, lat, lon)
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(place)
	}
	if place.State != "" {
		fmt.Printf("%s, %s, %s\n", place.City, place.State, place.Country)
	} else {
		fmt.Printf("%s, %s\n", place.City, place.Country)
	}
	return nil
}
