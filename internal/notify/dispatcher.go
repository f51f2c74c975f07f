package notify

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// EnqueueDeliveryTxFunc enqueues a DeliverNotification job within the given
// transaction. Provided by main using river.Client.InsertTx.
type EnqueueDeliveryTxFunc func(ctx context.Context, tx pgx.Tx, args DeliverNotificationArgs) error

// Dispatcher persists notifications and schedules their delivery. Both writes
// ride the caller's transaction: if the payment transition rolls back, no
// notification exists and nothing is delivered. Delivery failures after
// commit are retried by the queue and never affect the payment.
type Dispatcher struct {
	repo    *Repository
	enqueue EnqueueDeliveryTxFunc
}

func NewDispatcher(repo *Repository, enqueue EnqueueDeliveryTxFunc) *Dispatcher {
	return &Dispatcher{repo: repo, enqueue: enqueue}
}

// SendTx writes the notification row and enqueues its delivery.
func (d *Dispatcher) SendTx(ctx context.Context, tx pgx.Tx, n *Notification) error {
	if err := d.repo.CreateTx(ctx, tx, n); err != nil {
		return err
	}
	return d.enqueue(ctx, tx, DeliverNotificationArgs{NotificationID: n.ID})
}
