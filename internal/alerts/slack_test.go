package alerts_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/market-ingest/internal/alerts"
)

func TestNotifyEvent_BelowThresholdIsNoop(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer srv.Close()

	n := alerts.New(srv.URL, zap.NewNop())
	err := n.NotifyEvent(context.Background(), "SOCIAL.MENTIONS", "GME", 79, "")
	require.NoError(t, err)
	assert.False(t, hit, "severity below threshold must not call the webhook")
}

func TestNotifyEvent_NoWebhookConfiguredIsNoop(t *testing.T) {
	n := alerts.New("", zap.NewNop())
	err := n.NotifyEvent(context.Background(), "DISCLOSURE.FILING", "GME", 100, "")
	require.NoError(t, err)
}

func TestNotifyEvent_AtThresholdPostsWebhook(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n := alerts.New(srv.URL, zap.NewNop())
	err := n.NotifyEvent(context.Background(), "DISCLOSURE.FILING", "GME", alerts.SeverityThreshold, "https://example.com/e/1")
	require.NoError(t, err)
	assert.True(t, hit)
}
