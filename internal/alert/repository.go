package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository reads subscriptions from PostgreSQL.
type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository creates a new subscription repository.
func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

var _ SubscriptionStore = (*SubscriptionRepository)(nil)

// Active returns all active subscriptions.
func (r *SubscriptionRepository) Active(ctx context.Context) ([]Subscription, error) {
	query := `
		SELECT id, user_id, station_idx, city, threshold, channels, active, created_at
		FROM aq.subscriptions
		WHERE active = TRUE
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var s Subscription
		if err := rows.Scan(
			&s.ID, &s.UserID, &s.StationIdx, &s.City,
			&s.Threshold, &s.Channels, &s.Active, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// AuditRepository writes the delivery audit trail to PostgreSQL.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

var _ AuditStore = (*AuditRepository)(nil)

// Record appends one delivery audit entry.
func (r *AuditRepository) Record(ctx context.Context, n *Notification) error {
	query := `
		INSERT INTO aq.notifications (subscription_id, user_id, station_idx, aqi, threshold, channel, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	err := r.pool.QueryRow(ctx, query,
		n.SubscriptionID, n.UserID, n.StationIdx, n.AQI, n.Threshold, n.Channel, n.SentAt,
	).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// LastNotified returns when the (subscription, station) pair was last
// notified.
func (r *AuditRepository) LastNotified(ctx context.Context, subscriptionID int64, stationIdx string) (*time.Time, error) {
	query := `
		SELECT sent_at
		FROM aq.notifications
		WHERE subscription_id = $1 AND station_idx = $2
		ORDER BY sent_at DESC
		LIMIT 1
	`

	var sentAt time.Time
	err := r.pool.QueryRow(ctx, query, subscriptionID, stationIdx).Scan(&sentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last notification: %w", err)
	}
	return &sentAt, nil
}
