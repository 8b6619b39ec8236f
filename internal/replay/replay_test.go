package replay_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/market-ingest/internal/replay"
	"github.com/arc-self/market-ingest/internal/store"
)

type fakeStore struct {
	rows []store.OutboxRow
}

func (f *fakeStore) ListEventsInWindow(ctx context.Context, column store.TimestampColumn, start, end time.Time) ([]store.OutboxRow, error) {
	return f.rows, nil
}

type fakePublisher struct {
	published []string
}

func (p *fakePublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.published = append(p.published, subject)
	return nil
}

func TestRun_RepublishesInOrder(t *testing.T) {
	s := &fakeStore{rows: []store.OutboxRow{
		{EventID: "e1", PayloadJSON: []byte(`{"eventType":"SOCIAL.MENTIONS"}`)},
		{EventID: "e2", PayloadJSON: []byte(`{"eventType":"DISCLOSURE.FILING"}`)},
	}}
	pub := &fakePublisher{}
	e := replay.New(s, pub, zap.NewNop())

	n, err := e.Run(context.Background(), store.ColumnTsEvent, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"DOMAIN_EVENTS.SOCIAL.MENTIONS", "DOMAIN_EVENTS.DISCLOSURE.FILING"}, pub.published)
}

func TestRun_FailsOnUndecodablePayload(t *testing.T) {
	s := &fakeStore{rows: []store.OutboxRow{
		{EventID: "e1", PayloadJSON: []byte(`not json`)},
	}}
	e := replay.New(s, &fakePublisher{}, zap.NewNop())

	_, err := e.Run(context.Background(), store.ColumnTsIngested, time.Now().Add(-time.Hour), time.Now())
	assert.Error(t, err)
}
