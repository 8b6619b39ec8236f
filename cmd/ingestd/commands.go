package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arc-self/market-ingest/internal/alerts"
	"github.com/arc-self/market-ingest/internal/analytics"
	"github.com/arc-self/market-ingest/internal/connector"
	"github.com/arc-self/market-ingest/internal/connector/edgar"
	"github.com/arc-self/market-ingest/internal/connector/mock"
	"github.com/arc-self/market-ingest/internal/connector/reddit"
	"github.com/arc-self/market-ingest/internal/enrichment"
	"github.com/arc-self/market-ingest/internal/events"
	"github.com/arc-self/market-ingest/internal/fetch"
	"github.com/arc-self/market-ingest/internal/outbox"
	"github.com/arc-self/market-ingest/internal/platform/bus"
	"github.com/arc-self/market-ingest/internal/queue"
	"github.com/arc-self/market-ingest/internal/replay"
	"github.com/arc-self/market-ingest/internal/store"
)

func modeFlag(cmd *cobra.Command) *string {
	return cmd.Flags().String("mode", "shadow", "shadow (persist only) or emit (also publish to the outbox)")
}

func parseMode(s string) connector.Mode {
	if strings.EqualFold(s, "emit") {
		return connector.ModeEmit
	}
	return connector.ModeShadow
}

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply every embedded SQL migration in lexical order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := store.Migrate(cmd.Context(), a.pool); err != nil {
				return err
			}
			a.logger.Info("migrations applied")
			return nil
		},
	}
}

func newRunEdgarCommand(a *app) *cobra.Command {
	var ciks []string
	var userAgentName, userAgentEmail string
	var maxRPS float64

	cmd := &cobra.Command{
		Use:   "run-edgar",
		Short: "Run one EDGAR disclosure-filing poll cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, _ := cmd.Flags().GetString("mode")

			client, err := fetch.NewClient(fetch.Config{
				MaxRPS:    maxRPS,
				UserAgent: fmt.Sprintf("%s %s (market-ingest)", userAgentName, userAgentEmail),
				Timeout:   30 * time.Second,
			}, a.logger)
			if err != nil {
				return err
			}

			q := store.New(a.pool)
			ad := edgar.New(edgar.Config{
				CIKs:           ciks,
				UserAgentName:  userAgentName,
				UserAgentEmail: userAgentEmail,
				MaxRPS:         maxRPS,
			}, q, client, a.logger)

			runner := connector.NewRunner(connector.Config{
				Name:   "edgar",
				Source: events.SourceEDGAR,
				Mode:   parseMode(mode),
			}, ad, connector.NewPoolExecutor(a.pool), a.blobs, a.metrics, a.logger)

			stats := runner.RunOnce(cmd.Context())
			a.logger.Info("edgar poll cycle complete",
				zap.Int("fetched", stats.Fetched), zap.Int("ingested", stats.Ingested),
				zap.Int("deduped", stats.Deduped), zap.Int("errors", stats.Errors))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&ciks, "ciks", nil, "CIKs to poll (comma-separated)")
	cmd.Flags().StringVar(&userAgentName, "user-agent-name", "market-ingest", "contact name for SEC's required User-Agent")
	cmd.Flags().StringVar(&userAgentEmail, "user-agent-email", "", "contact email for SEC's required User-Agent")
	cmd.Flags().Float64Var(&maxRPS, "max-rps", 0, "requests/sec cap, clamped to fetch.HardCapRPS")
	modeFlag(cmd)
	return cmd
}

func newRunRedditCommand(a *app) *cobra.Command {
	var subreddits []string
	var userAgent string

	cmd := &cobra.Command{
		Use:   "run-reddit",
		Short: "Run one Reddit forum-post poll cycle",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, _ := cmd.Flags().GetString("mode")

			client, err := fetch.NewClient(fetch.Config{UserAgent: userAgent, Timeout: 10 * time.Second}, a.logger)
			if err != nil {
				return err
			}

			ad := reddit.New(reddit.Config{Subreddits: subreddits, UserAgent: userAgent}, client, a.logger)

			runner := connector.NewRunner(connector.Config{
				Name:   "reddit",
				Source: events.SourceWSB,
				Mode:   parseMode(mode),
			}, ad, connector.NewPoolExecutor(a.pool), a.blobs, a.metrics, a.logger)

			stats := runner.RunOnce(cmd.Context())
			a.logger.Info("reddit poll cycle complete",
				zap.Int("fetched", stats.Fetched), zap.Int("ingested", stats.Ingested),
				zap.Int("deduped", stats.Deduped), zap.Int("errors", stats.Errors))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&subreddits, "subreddits", []string{"wallstreetbets"}, "subreddits to poll")
	cmd.Flags().StringVar(&userAgent, "user-agent", "market-ingest/1.0", "User-Agent sent on every request")
	modeFlag(cmd)
	return cmd
}

func newRunWSBCommand(a *app) *cobra.Command {
	var symbol, text string
	var upvotes int

	cmd := &cobra.Command{
		Use:   "run-wsb",
		Short: "Run one synthetic wallstreetbets-shaped poll cycle (no network access)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, _ := cmd.Flags().GetString("mode")

			ad := mock.New(symbol, text, upvotes)
			runner := connector.NewRunner(connector.Config{
				Name:   "mock-wsb",
				Source: events.SourceWSB,
				Mode:   parseMode(mode),
			}, ad, connector.NewPoolExecutor(a.pool), a.blobs, a.metrics, a.logger)

			stats := runner.RunOnce(cmd.Context())
			a.logger.Info("mock poll cycle complete",
				zap.Int("fetched", stats.Fetched), zap.Int("ingested", stats.Ingested),
				zap.Int("deduped", stats.Deduped), zap.Int("errors", stats.Errors))
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "GME", "ticker the synthetic post mentions")
	cmd.Flags().StringVar(&text, "text", "to the moon", "synthetic post body")
	cmd.Flags().IntVar(&upvotes, "upvotes", 100, "synthetic post upvote count")
	modeFlag(cmd)
	return cmd
}

// newRunConnectorLoopCommand drives one of the named connectors on a fixed
// poll interval, matching discovery-service's scan_poller.go tick loop
// generalized from one connector to a name-selected one.
func newRunConnectorLoopCommand(a *app) *cobra.Command {
	var name string
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "run-connector-loop",
		Short: "Poll a named connector (edgar, reddit, wsb) on a fixed interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, _ := cmd.Flags().GetString("mode")
			cobraCmd, err := connectorCommandFor(name, a, parseMode(mode))
			if err != nil {
				return err
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			ctx := cmd.Context()
			for {
				if err := cobraCmd.RunE(cobraCmd, args); err != nil {
					a.logger.Error("connector loop cycle failed", zap.String("connector", name), zap.Error(err))
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().StringVar(&name, "connector", "wsb", "connector to poll: edgar, reddit, or wsb")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "poll interval")
	modeFlag(cmd)
	return cmd
}

// connectorCommandFor resolves the named connector to its single-cycle
// subcommand so run-connector-loop can reuse the exact same flags/wiring
// every run-<source> subcommand uses, rather than duplicating it.
func connectorCommandFor(name string, a *app, mode connector.Mode) (*cobra.Command, error) {
	var cmd *cobra.Command
	switch name {
	case "edgar":
		cmd = newRunEdgarCommand(a)
	case "reddit":
		cmd = newRunRedditCommand(a)
	case "wsb":
		cmd = newRunWSBCommand(a)
	default:
		return nil, fmt.Errorf("unknown connector %q (want edgar, reddit, or wsb)", name)
	}
	_ = cmd.Flags().Set("mode", string(mode))
	return cmd, nil
}

func newDispatchOutboxCommand(a *app) *cobra.Command {
	var interval time.Duration
	var batchSize int32
	var once bool

	cmd := &cobra.Command{
		Use:   "dispatch-outbox",
		Short: "Drain unpublished outbox rows to the bus in committed order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := outbox.New(outbox.NewPoolExecutor(a.pool), outbox.NewBusPublisher(a.bus), batchSize, a.logger)
			if once {
				n, err := d.DispatchOnce(cmd.Context())
				if err != nil {
					return err
				}
				a.logger.Info("outbox batch dispatched", zap.Int("published", n))
				return nil
			}
			d.Run(cmd.Context(), interval)
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "poll interval between batches")
	cmd.Flags().Int32Var(&batchSize, "batch-size", 100, "rows claimed per batch")
	cmd.Flags().BoolVar(&once, "once", false, "dispatch exactly one batch and exit")
	return cmd
}

func newReplayLastMinutesCommand(a *app) *cobra.Command {
	var minutes int
	var column string

	cmd := &cobra.Command{
		Use:   "replay-last-minutes",
		Short: "Republish canonical events from the last N minutes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			col := store.ColumnTsEvent
			if column == "ts_ingested" {
				col = store.ColumnTsIngested
			}

			end := time.Now().UTC()
			start := end.Add(-time.Duration(minutes) * time.Minute)

			eng := replay.New(replay.NewPoolStore(a.pool), outbox.NewBusPublisher(a.bus), a.logger)
			n, err := eng.Run(cmd.Context(), col, start, end)
			if err != nil {
				return err
			}
			a.logger.Info("replay complete", zap.Int("republished", n))
			return nil
		},
	}
	cmd.Flags().IntVar(&minutes, "minutes", 15, "size of the replay window, in minutes")
	cmd.Flags().StringVar(&column, "column", "ts_event", "ts_event or ts_ingested")
	return cmd
}

func newLookupCIKCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup-cik <cik>",
		Short: "Zero-pad a CIK to SEC's canonical 10-digit form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(edgar.NormalizeCIK(args[0]))
			return nil
		},
	}
}

func newServeMetricsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve-metrics",
		Short: "Block until interrupted, keeping the OTel metrics reader alive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.logger.Info("metrics reader running; press ctrl-c to stop")
			<-cmd.Context().Done()
			return nil
		},
	}
}

func newBuildIndexCommand(a *app) *cobra.Command {
	var eventType string
	var day string

	cmd := &cobra.Command{
		Use:   "build-index",
		Short: "Build the daily analytics index for one event type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := time.Parse("2006-01-02", day)
			if err != nil {
				return fmt.Errorf("parse --day: %w", err)
			}
			w := analytics.New(a.blobs, a.logger)
			key, count, err := w.BuildDailyIndex(cmd.Context(), eventType, d)
			if err != nil {
				return err
			}
			a.logger.Info("analytics index built", zap.String("key", key), zap.Int("rows", count))
			return nil
		},
	}
	cmd.Flags().StringVar(&eventType, "event-type", string(events.EventTypeSocialMentions), "event type to index")
	cmd.Flags().StringVar(&day, "day", time.Now().UTC().Format("2006-01-02"), "day to index, YYYY-MM-DD UTC")
	return cmd
}

// newRunEnrichmentCommand consumes DOMAIN_EVENTS.> off the bus and applies
// the reference keyword annotator, alerting on high-severity source events
// along the way.
func newRunEnrichmentCommand(a *app) *cobra.Command {
	var modelName string
	var durableName string

	cmd := &cobra.Command{
		Use:   "run-enrichment",
		Short: "Consume canonical events and emit MODEL.INSIGHT annotations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, _ := cmd.Flags().GetString("mode")

			consumer := enrichment.New(enrichment.Config{ModelName: modelName, Mode: enrichment.Mode(parseMode(mode))},
				enrichment.NewKeywordAnnotator(), enrichment.NewPoolExecutor(a.pool), a.blobs, a.metrics, a.logger)
			notifier := alerts.New(a.cfg.SlackWebhookURL, a.logger)

			handler := func(ctx context.Context, event *events.Event) error {
				if _, err := consumer.Process(ctx, event); err != nil {
					return err
				}
				return notifier.NotifyEvent(ctx, string(event.EventType), event.Symbol, event.Severity, "")
			}

			q := queue.New(a.bus.JS, queue.Config{Subject: bus.SubjectDomainEvents, DurableName: durableName}, eventHandler(handler), a.logger)
			stats, err := q.Run(cmd.Context())
			a.logger.Info("enrichment consumer stopped",
				zap.Int("received", stats.Received), zap.Int("processed", stats.Processed), zap.Int("failed", stats.Failed))
			return err
		},
	}
	cmd.Flags().StringVar(&modelName, "model-name", "keyword-v1", "model name recorded on artifacts/insight events")
	cmd.Flags().StringVar(&durableName, "durable-name", "market-ingest-enrichment", "JetStream durable consumer name")
	modeFlag(cmd)
	return cmd
}

// eventHandler adapts a canonical-event handler to queue.Handler, decoding
// each message's payload before dispatch and rejecting malformed payloads
// as terminal (they will never decode successfully on redelivery either).
func eventHandler(fn func(ctx context.Context, event *events.Event) error) queue.Handler {
	return func(ctx context.Context, msg *nats.Msg) error {
		event, err := events.Decode(msg.Data)
		if err != nil {
			return fmt.Errorf("%w: %v", queue.ErrTerminal, err)
		}
		return fn(ctx, event)
	}
}
