// Command ingestd is the operator CLI for the market-ingest pipeline: one
// cobra command tree wrapping the connector runners, the outbox dispatcher,
// the replay engine, and the supplemented enrichment/analytics consumers,
// matching the donor monorepo's convention of wiring config → logger →
// tracer → pool → dependencies once at process start.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arc-self/market-ingest/internal/blobstore"
	"github.com/arc-self/market-ingest/internal/config"
	"github.com/arc-self/market-ingest/internal/logging"
	"github.com/arc-self/market-ingest/internal/platform/bus"
	"github.com/arc-self/market-ingest/internal/telemetry"
)

// app bundles every long-lived dependency a subcommand might need. Built
// once in PersistentPreRunE and torn down in the root command's
// PersistentPostRun.
type app struct {
	cfg     config.Settings
	logger  *zap.Logger
	pool    *pgxpool.Pool
	bus     *bus.Client
	blobs   blobstore.Store
	metrics *telemetry.Metrics

	shutdownMeter func(context.Context) error
}

func (a *app) Close() {
	if a.bus != nil {
		a.bus.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.shutdownMeter != nil {
		_ = a.shutdownMeter(context.Background())
	}
	_ = a.logger.Sync()
}

func main() {
	var theApp app

	root := &cobra.Command{
		Use:   "ingestd",
		Short: "Ingestion and normalization pipeline for external event streams",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bootstrap(cmd.Context(), &theApp)
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			theApp.Close()
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	root.SetContext(ctx)

	root.AddCommand(
		newMigrateCommand(&theApp),
		newRunEdgarCommand(&theApp),
		newRunRedditCommand(&theApp),
		newRunWSBCommand(&theApp),
		newRunConnectorLoopCommand(&theApp),
		newDispatchOutboxCommand(&theApp),
		newReplayLastMinutesCommand(&theApp),
		newLookupCIKCommand(&theApp),
		newServeMetricsCommand(&theApp),
		newBuildIndexCommand(&theApp),
		newRunEnrichmentCommand(&theApp),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// bootstrap wires every shared dependency, matching the donor's
// config → logger → tracer → pool → dependencies ordering
// (apps/discovery-service/cmd/api/main.go).
func bootstrap(ctx context.Context, a *app) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	a.logger = logger

	shutdownMeter, err := telemetry.InitMeterProvider(ctx, "market-ingest", os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if err != nil {
		logger.Warn("otel meter provider init failed, continuing without export", zap.Error(err))
	}
	a.shutdownMeter = shutdownMeter

	metrics, err := telemetry.New("market-ingest")
	if err != nil {
		return fmt.Errorf("build metrics: %w", err)
	}
	a.metrics = metrics

	poolCfg, err := pgxpool.ParseConfig(cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("parse PG_DSN: %w", err)
	}
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	a.pool = pool
	logger.Info("connected to database (OTel-instrumented)")

	blobs, err := blobstore.NewFSStore(cfg.BlobRoot)
	if err != nil {
		return fmt.Errorf("build blob store: %w", err)
	}
	a.blobs = blobs

	busClient, err := bus.NewClient(cfg.NATSURL, logger)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	if err := bus.ProvisionStreams(busClient.JS); err != nil {
		return fmt.Errorf("provision streams: %w", err)
	}
	a.bus = busClient

	return nil
}
