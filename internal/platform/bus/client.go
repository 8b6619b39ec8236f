// Package bus wraps the NATS JetStream connection used as the at-least-once
// message queue described in SPEC_FULL.md §6: durable pull consumers with
// explicit Ack/Nak/Term stand in for the distilled spec's visibility-timeout
// queue semantics.
package bus

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Client wraps a NATS connection and its JetStream context.
type Client struct {
	Conn *nats.Conn
	JS   nats.JetStreamContext
	Log  *zap.Logger
}

// NewClient connects to NATS and initialises a JetStream context.
func NewClient(url string, logger *zap.Logger) (*Client, error) {
	nc, err := nats.Connect(url, nats.RetryOnFailedConnect(true), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize JetStream: %w", err)
	}

	logger.Info("NATS JetStream connected", zap.String("url", url))
	return &Client{Conn: nc, JS: js, Log: logger}, nil
}

// Close drains and closes the underlying NATS connection. Drain() flushes
// all pending JetStream publish acknowledgments and outstanding subscription
// deliveries before closing — unlike Close(), which drops in-flight messages
// immediately. This matters for the outbox dispatcher's at-least-once
// guarantee: a bare Close() during shutdown could drop a publish that the
// dispatcher had already marked committed.
func (c *Client) Close() {
	if c.Conn != nil {
		if err := c.Conn.Drain(); err != nil {
			c.Conn.Close()
		}
	}
}
