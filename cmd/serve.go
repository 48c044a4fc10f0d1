package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/photo-indexer/internal/constants"
	"github.com/kozaktomas/photo-indexer/internal/database/postgres"
	"github.com/kozaktomas/photo-indexer/internal/enrich"
	"github.com/kozaktomas/photo-indexer/internal/geocode"
	"github.com/kozaktomas/photo-indexer/internal/ingest"
	"github.com/kozaktomas/photo-indexer/internal/observability"
	"github.com/kozaktomas/photo-indexer/internal/search"
	"github.com/kozaktomas/photo-indexer/internal/web"
	"github.com/kozaktomas/photo-indexer/internal/web/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the periodic enrichment scheduler",
	Long: `Start the Photo Indexer web server.
The server answers natural-language search over described photos, reverse and
forward place lookups, accepts photo uploads and runs an enrichment pass on
startup and then every ENRICH_INTERVAL.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 3000, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("no-scheduler", false, "Do not run periodic enrichment passes")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	photos := postgres.NewPhotoRepository(pool)
	gazetteer := postgres.NewGazetteerRepository(pool)

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
	locator, err := newLocator(ctx, cfg, gazetteer, logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	coordinator, err := enrich.NewCoordinator(enrich.Deps{
		Photos:    photos,
		Objects:   store,
		Describer: describer,
		Embedder:  embedder,
		Locator:   locator,
		Logger:    logger,
		Metrics:   metrics,
	}, enrichOptions(cfg))
	if err != nil {
		return err
	}
	scheduler := enrich.NewScheduler(coordinator, cfg.Enrich.Interval, logger)

	server := web.NewServer(cfg, web.Deps{
		Search:   search.NewEngine(photos, embedder, logger, metrics),
		Geocoder: geocode.NewNominatimClient(cfg.Geocoder.NominatimURL, cfg.Geocoder.NominatimAgent, cfg.Geocoder.NominatimTimeout),
		Locator:  locator,
		Passes:   scheduler,
		Stats:    photos,
		Uploader: ingest.NewRegistrar(photos, store, cfg.ObjectStore.PublicBaseURL, constants.ImportConcurrency, logger),
		Checks:   map[string]handlers.Check{
			"database": pool.Ping,
			"storage":  store.Ping,
		},
		Gatherer: registry,
	}, logger)

	schedulerDone := make(chan struct{})
	if mustGetBool(cmd, "no-scheduler") {
		close(schedulerDone)
	} else {
		go func() {
			defer close(schedulerDone)
			scheduler.Run(ctx)
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("shutting down")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting Photo Indexer API on http://%s\n", cfg.Web.Addr())
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		cancel()
		<-schedulerDone
		return fmt.Errorf("starting server: %w", err)
	}

	cancel()
	<-schedulerDone
	scheduler.Wait()
	return nil
}
