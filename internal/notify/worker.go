package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

type DeliverNotificationArgs struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

func (DeliverNotificationArgs) Kind() string { return "deliver_notification" }

// DeliverWorker pushes persisted notifications to the downstream channel
// (in-app push / SMS gateway webhook). Errors returned here make the queue
// retry; the originating payment transition has long since committed.
type DeliverWorker struct {
	river.WorkerDefaults[DeliverNotificationArgs]
	repo       *Repository
	webhookURL string
	httpClient *http.Client
}

// NewDeliverWorker returns a delivery worker. An empty webhookURL means
// notifications are in-app only and are marked delivered immediately.
func NewDeliverWorker(repo *Repository, webhookURL string) *DeliverWorker {
	return &DeliverWorker{
		repo:       repo,
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *DeliverWorker) Work(ctx context.Context, job *river.Job[DeliverNotificationArgs]) error {
	n, err := w.repo.GetByID(ctx, job.Args.NotificationID)
	if err != nil {
		return err
	}
	if n.DeliveredAt != nil {
		return nil
	}

	if w.webhookURL != "" {
		body, err := json.Marshal(n)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("network error delivering notification: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("notification channel returned status %d", resp.StatusCode)
		}
	}

	return w.repo.MarkDelivered(ctx, n.ID)
}
