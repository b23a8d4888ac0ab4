package notify

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mkline/granary/internal/logger"
)

// Alert is the payload posted to the operator webhook when an artifact needs
// attention: a quarantine or a failed load.
type Alert struct {
	Kind     string    `json:"kind"`
	Artifact string    `json:"artifact"`
	Reason   string    `json:"reason"`
	Time     time.Time `json:"time"`
}

// Webhook posts alerts to a configured HTTP endpoint. Delivery is
// best-effort: failures are logged, never propagated, so alerting can never
// stall the pipeline.
type Webhook struct {
	client *resty.Client
	url    string
	log    *logger.Logger
}

// NewWebhook creates a webhook notifier. An empty URL yields a disabled
// notifier whose Send is a no-op.
// Parameters:
//   - url: webhook endpoint; empty disables alerting.
//   - timeout: per-request timeout.
//   - log: logger.
// Returns:
//   - *Webhook: configured notifier.
func NewWebhook(url string, timeout time.Duration, log *logger.Logger) *Webhook {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &Webhook{client: client, url: url, log: log}
}

// Send posts one alert. No-op when no URL is configured.
func (w *Webhook) Send(ctx context.Context, kind, artifact, reason string) {
	if w.url == "" {
		return
	}

	alert := Alert{
		Kind:     kind,
		Artifact: artifact,
		Reason:   reason,
		Time:     time.Now(),
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(alert).
		Post(w.url)
	if err != nil {
		w.log.WithError(err).WithField(logger.FieldArtifact, artifact).Warn("Failed to deliver alert")
		return
	}
	if resp.IsError() {
		w.log.WithFields(logger.Fields{
			logger.FieldArtifact: artifact,
			logger.FieldStatus:   resp.StatusCode(),
		}).Warn("Alert endpoint returned error status")
	}
}
