package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"media-task-queue/internal/models"
	"media-task-queue/internal/telemetry"
)

// Notifier delivers terminal job records to caller-supplied URLs. Delivery
// is best effort: one attempt, no retries, and a failed delivery never
// alters the record — the status endpoint stays the source of truth.
type Notifier struct {
	client *http.Client
}

func New(timeout time.Duration) *Notifier {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{client: &http.Client{Timeout: timeout}}
}

// Notify posts rec to url. An empty url means no notification was
// requested and is a no-op.
func (n *Notifier) Notify(ctx context.Context, url string, rec models.JobRecord) {
	if url == "" {
		return
	}

	body, err := json.Marshal(rec)
	if err != nil {
		log.Printf("webhook for job %s: marshal record: %v", rec.JobID, err)
		telemetry.WebhookFailures.Inc()
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("webhook for job %s: build request: %v", rec.JobID, err)
		telemetry.WebhookFailures.Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("webhook for job %s to %s failed: %v", rec.JobID, url, err)
		telemetry.WebhookFailures.Inc()
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		log.Printf("webhook for job %s to %s returned status %d", rec.JobID, url, resp.StatusCode)
		telemetry.WebhookFailures.Inc()
	}
}
