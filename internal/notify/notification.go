package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Notification types shown to users.
const (
	TypePayment = "payment"
	TypeSystem  = "system"
)

// Notification is one user-facing message about a payment or subscription
// state change. Rows are written in the same database transaction as the
// state change; delivery happens out-of-band.
type Notification struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Type        string     `json:"type"`
	ActionURL   string     `json:"action_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateTx inserts a notification row inside the caller's transaction.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, n *Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return tx.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, title, message, type, action_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, n.ID, n.UserID, n.Title, n.Message, n.Type, n.ActionURL).Scan(&n.CreatedAt)
}

// GetByID loads a notification for delivery.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Notification, error) {
	var n Notification
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, title, message, type, action_url, created_at, delivered_at
		FROM notifications WHERE id = $1
	`, id).Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.ActionURL, &n.CreatedAt, &n.DeliveredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.New("notification not found")
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// MarkDelivered stamps delivered_at once the downstream channel accepted it.
func (r *Repository) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE notifications SET delivered_at = now() WHERE id = $1 AND delivered_at IS NULL
	`, id)
	return err
}
