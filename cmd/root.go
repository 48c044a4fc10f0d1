package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photo-indexer",
	Short: "Describe, embed and geotag event photos for natural-language search",
	Long: `Photo Indexer keeps a catalog of photos stored in an S3-compatible bucket.
A background enrichment pass asks a vision model for a one-sentence description,
embeds the description for semantic search and names the nearest place for photos
carrying GPS coordinates. The serve command exposes search over HTTP.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "", "Log level override (debug, info, warn, error)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
