// Package queue implements the generic durable pull-consumer scaffold
// used by the enrichment consumer: a durable JetStream
// pull subscription, batch Fetch with a long-poll wait, and per-message
// Ack/Nak/Term, matching notification-service's EventConsumer and
// audit-service's GlobalAuditConsumer.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	defaultFetchBatch   = 10
	defaultFetchTimeout = 20 * time.Second
	loopBackoff         = 5 * time.Second
)

// Handler processes one message. Returning nil Acks the message;
// returning ErrTerminal Terms it (the payload can never succeed, e.g. it
// fails to decode); any other error Naks it for redelivery — matching the
// donor's "terminate on malformed payload, retry on transient failure"
// convention.
type Handler func(ctx context.Context, msg *nats.Msg) error

// ErrTerminal signals that a message must not be redelivered.
var ErrTerminal = errors.New("queue: terminal message")

// Stats tallies pulled messages: each one counts toward Received, and is
// then either Processed (Acked) or Failed (Nak'd or Term'd). processBatch
// returns one batch's tally; Run returns the sum over every batch.
type Stats struct {
	Received  int
	Processed int
	Failed    int
}

// Consumer pulls from one durable JetStream consumer and dispatches each
// message to a Handler.
type Consumer struct {
	js          nats.JetStreamContext
	subject     string
	durableName string
	handler     Handler
	logger      *zap.Logger

	fetchBatch   int
	fetchTimeout time.Duration
}

// Config parameterizes a Consumer.
type Config struct {
	Subject      string
	DurableName  string
	FetchBatch   int
	FetchTimeout time.Duration
}

// New builds a Consumer.
func New(js nats.JetStreamContext, cfg Config, handler Handler, logger *zap.Logger) *Consumer {
	batch := cfg.FetchBatch
	if batch <= 0 {
		batch = defaultFetchBatch
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &Consumer{
		js:           js,
		subject:      cfg.Subject,
		durableName:  cfg.DurableName,
		handler:      handler,
		logger:       logger,
		fetchBatch:   batch,
		fetchTimeout: timeout,
	}
}

// Run subscribes as a durable pull consumer and processes messages until
// ctx is cancelled. It blocks; callers typically invoke it in a goroutine.
// The returned Stats accumulate every batch processed over the run's
// lifetime.
func (c *Consumer) Run(ctx context.Context) (Stats, error) {
	var total Stats

	sub, err := c.js.PullSubscribe(c.subject, c.durableName, nats.AckExplicit(), nats.ManualAck())
	if err != nil {
		return total, err
	}

	c.logger.Info("consumer started", zap.String("subject", c.subject), zap.String("durable", c.durableName))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", zap.String("durable", c.durableName))
			return total, nil
		default:
		}

		msgs, err := sub.Fetch(c.fetchBatch, nats.MaxWait(c.fetchTimeout))
		if err != nil {
			if err == nats.ErrTimeout {
				continue
			}
			c.logger.Error("consumer fetch error", zap.String("durable", c.durableName), zap.Error(err))
			sleepCtx(ctx, loopBackoff)
			continue
		}

		batch := c.processBatch(ctx, msgs)
		total.Received += batch.Received
		total.Processed += batch.Processed
		total.Failed += batch.Failed
	}
}

// processBatch dispatches every message fetched in one round and tallies
// the outcome.
func (c *Consumer) processBatch(ctx context.Context, msgs []*nats.Msg) Stats {
	stats := Stats{Received: len(msgs)}
	for _, msg := range msgs {
		if c.dispatch(ctx, msg) {
			stats.Processed++
		} else {
			stats.Failed++
		}
	}
	return stats
}

// dispatch runs the handler for one message and Acks/Naks/Terms it
// accordingly, reporting whether it was Acked.
func (c *Consumer) dispatch(ctx context.Context, msg *nats.Msg) bool {
	err := c.handler(ctx, msg)
	switch {
	case err == nil:
		msg.Ack()
		return true
	case errors.Is(err, ErrTerminal):
		c.logger.Warn("handler returned terminal error, terminating message",
			zap.String("subject", msg.Subject), zap.Error(err))
		msg.Term()
		return false
	default:
		c.logger.Error("handler failed, nak'ing message",
			zap.String("subject", msg.Subject), zap.Error(err))
		msg.Nak()
		return false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
