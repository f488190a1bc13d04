package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"IgniteX/internal/domain/models"
	xhttp "IgniteX/pkg/http"
	"IgniteX/pkg/queue"
)

// WebhookNotifier posts each event as JSON to a fixed URL.
type WebhookNotifier struct {
	url    string
	client *xhttp.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: xhttp.NewClient(xhttp.WithTimeout(timeout))}
}

func (w *WebhookNotifier) PublishEvent(ctx context.Context, e models.Event) error {
	if err := w.client.PostJSON(ctx, w.url, e, nil, map[string]string{"X-IgniteX-Event": string(e.Kind)}); err != nil {
		return fmt.Errorf("webhook %s: %w", e.Kind, err)
	}
	return nil
}

// WebhookJobType is the queue message type carrying one webhook event.
const WebhookJobType = "notify.webhook"

// QueuedNotifier hands events to a durable queue instead of calling the
// webhook inline. WebhookJob performs the call with queue retries.
type QueuedNotifier struct {
	q queue.QueueService
}

func NewQueuedNotifier(q queue.QueueService) *QueuedNotifier { return &QueuedNotifier{q: q} }

func (n *QueuedNotifier) PublishEvent(ctx context.Context, e models.Event) error {
	return n.q.PublishMessage(ctx, WebhookJobType, e)
}

// WebhookJob consumes WebhookJobType messages.
type WebhookJob struct {
	notifier *WebhookNotifier
}

func NewWebhookJob(n *WebhookNotifier) *WebhookJob { return &WebhookJob{notifier: n} }

func (j *WebhookJob) Name() string { return "webhook-notifier" }
func (j *WebhookJob) Type() string { return WebhookJobType }

// Handle delivers one queued event. Rejections the receiver will repeat
// (4xx other than 429) are not retried.
func (j *WebhookJob) Handle(ctx context.Context, payload json.RawMessage) error {
	e, err := queue.Decode[models.Event](payload)
	if err != nil {
		return queue.Permanent(fmt.Errorf("webhook job payload: %w", err))
	}
	if err := j.notifier.PublishEvent(ctx, e); err != nil {
		if !xhttp.Retryable(err) {
			return queue.Permanent(err)
		}
		return err
	}
	return nil
}
