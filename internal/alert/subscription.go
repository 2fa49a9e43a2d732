// Package alert implements threshold alert evaluation: matching recent
// readings against user subscriptions, dispatching notifications, and
// keeping the delivery audit trail.
package alert

import (
	"context"
	"time"
)

// Subscription is a user's alert configuration. Owned by the web
// application; the pipeline only reads it.
type Subscription struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	StationIdx *string   `json:"station_idx,omitempty"` // direct station reference
	City       *string   `json:"city,omitempty"`        // or area reference
	Threshold  int       `json:"threshold"`
	Channels   []string  `json:"channels"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Recipient returns the delivery address for a channel. The web
// application stores per-channel addresses elsewhere; for the pipeline
// the user id is the routing key the sink resolves.
func (s *Subscription) Recipient() string {
	return s.UserID
}

// Notification is one delivery audit record. It also backs the
// cooldown lookup.
type Notification struct {
	ID             int64     `json:"id"`
	SubscriptionID int64     `json:"subscription_id"`
	UserID         string    `json:"user_id"`
	StationIdx     string    `json:"station_idx"`
	AQI            int       `json:"aqi"`
	Threshold      int       `json:"threshold"`
	Channel        string    `json:"channel"`
	SentAt         time.Time `json:"sent_at"`
}

// SubscriptionStore is the read contract for subscriptions.
type SubscriptionStore interface {
	Active(ctx context.Context) ([]Subscription, error)
}

// AuditStore records deliveries and answers cooldown lookups.
type AuditStore interface {
	// Record appends one delivery audit entry.
	Record(ctx context.Context, n *Notification) error

	// LastNotified returns when the (subscription, station) pair was
	// last notified, or nil when it never was.
	LastNotified(ctx context.Context, subscriptionID int64, stationIdx string) (*time.Time, error)
}

// Notifier is the delivery sink collaborator.
type Notifier interface {
	Send(ctx context.Context, channel, recipient, message string) error
}

// StationResolver maps a subscription to the stations it covers.
type StationResolver interface {
	Resolve(ctx context.Context, sub Subscription) ([]string, error)
}
