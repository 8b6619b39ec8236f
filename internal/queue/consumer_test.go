package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

// These exercise Consumer.dispatch directly against a bare *nats.Msg (no
// live subscription); Ack/Nak/Term on such a message are harmless no-ops
// that return an error we don't inspect, matching how the donor's
// consumer tests avoid standing up a real JetStream connection.

func newTestConsumer(t *testing.T, handler Handler) *Consumer {
	t.Helper()
	return New(nil, Config{Subject: "DOMAIN_EVENTS.>", DurableName: "test"}, handler, zaptest.NewLogger(t))
}

func TestDispatch_SuccessPath(t *testing.T) {
	called := false
	c := newTestConsumer(t, func(ctx context.Context, msg *nats.Msg) error {
		called = true
		return nil
	})
	ok := c.dispatch(context.Background(), &nats.Msg{Subject: "DOMAIN_EVENTS.SOCIAL.MENTIONS"})
	assert.True(t, called)
	assert.True(t, ok)
}

func TestDispatch_TerminalError(t *testing.T) {
	c := newTestConsumer(t, func(ctx context.Context, msg *nats.Msg) error {
		return ErrTerminal
	})
	var ok bool
	assert.NotPanics(t, func() {
		ok = c.dispatch(context.Background(), &nats.Msg{Subject: "DOMAIN_EVENTS.X"})
	})
	assert.False(t, ok)
}

func TestDispatch_TransientError(t *testing.T) {
	c := newTestConsumer(t, func(ctx context.Context, msg *nats.Msg) error {
		return errors.New("transient")
	})
	var ok bool
	assert.NotPanics(t, func() {
		ok = c.dispatch(context.Background(), &nats.Msg{Subject: "DOMAIN_EVENTS.X"})
	})
	assert.False(t, ok)
}

func TestProcessBatch_TalliesReceivedProcessedFailed(t *testing.T) {
	c := newTestConsumer(t, func(ctx context.Context, msg *nats.Msg) error {
		if msg.Subject == "DOMAIN_EVENTS.BAD" {
			return errors.New("transient")
		}
		return nil
	})
	msgs := []*nats.Msg{
		{Subject: "DOMAIN_EVENTS.OK"},
		{Subject: "DOMAIN_EVENTS.OK"},
		{Subject: "DOMAIN_EVENTS.BAD"},
	}
	stats := c.processBatch(context.Background(), msgs)
	assert.Equal(t, Stats{Received: 3, Processed: 2, Failed: 1}, stats)
}
