// Package alerts implements the severity-gated Slack notifier described
// in SPEC_FULL.md §4.10: a quiet-by-default webhook that only fires for
// severity >= 80 events, the Go counterpart of the original alerts/slack.py
// (which used slack_sdk's WebhookClient). github.com/slack-go/slack
// appears in the retrieval pack's go.mod manifests and is used here for
// the equivalent Go-idiomatic webhook client.
package alerts

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SeverityThreshold is the minimum event severity that triggers a Slack
// notification; anything below this is silently dropped.
const SeverityThreshold = 80

// Notifier posts high-severity event summaries to a Slack incoming
// webhook. A Notifier with an empty WebhookURL is valid and simply drops
// every notification, matching the original's "if not configured, return"
// behavior.
type Notifier struct {
	webhookURL string
	logger     *zap.Logger
}

// New builds a Notifier. webhookURL may be empty to disable alerting
// entirely.
func New(webhookURL string, logger *zap.Logger) *Notifier {
	return &Notifier{webhookURL: webhookURL, logger: logger}
}

// NotifyEvent posts a summary of a canonical event to Slack if severity
// meets SeverityThreshold. It is a no-op when the Notifier has no webhook
// configured, or when severity is below threshold.
func (n *Notifier) NotifyEvent(ctx context.Context, eventType, symbol string, severity int, detailURL string) error {
	if n.webhookURL == "" {
		return nil
	}
	if severity < SeverityThreshold {
		return nil
	}

	text := fmt.Sprintf(":rotating_light: %s severity=%d symbol=%s", eventType, severity, symbol)
	if detailURL != "" {
		text += " " + detailURL
	}

	msg := &slack.WebhookMessage{Text: text}
	if err := slack.PostWebhookContext(ctx, n.webhookURL, msg); err != nil {
		n.logger.Warn("slack webhook post failed", zap.Error(err))
		return fmt.Errorf("alerts: post webhook: %w", err)
	}
	return nil
}
