package eventlog

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// PushSubscription is one browser's Web Push registration.
type PushSubscription struct {
	ID        string    `json:"id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SaveSubscription creates or refreshes a subscription keyed by its
// endpoint and returns the stored row.
func (l *Log) SaveSubscription(sub PushSubscription) (PushSubscription, error) {
	if l == nil || l.db == nil {
		return PushSubscription{}, ErrClosed
	}
	sub.Endpoint = strings.TrimSpace(sub.Endpoint)
	if sub.Endpoint == "" {
		return PushSubscription{}, fmt.Errorf("push subscription endpoint cannot be empty")
	}
	if sub.ID == "" {
		sub.ID = ulid.Make().String()
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}

	_, err := l.db.Exec(`
		INSERT INTO push_subscriptions (id, endpoint, p256dh, auth, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			p256dh = excluded.p256dh,
			auth = excluded.auth,
			user_agent = excluded.user_agent
	`, sub.ID, sub.Endpoint, sub.P256dh, sub.Auth, sub.UserAgent, sub.CreatedAt.UTC())
	if err != nil {
		return PushSubscription{}, fmt.Errorf("save push subscription: %w", err)
	}

	stored, err := l.subscriptionByEndpoint(sub.Endpoint)
	if err != nil {
		return PushSubscription{}, err
	}
	return stored, nil
}

func (l *Log) subscriptionByEndpoint(endpoint string) (PushSubscription, error) {
	row := l.db.QueryRow(`
		SELECT id, endpoint, p256dh, auth, user_agent, created_at
		FROM push_subscriptions WHERE endpoint = ?
	`, endpoint)
	return scanSubscription(row)
}

// ListSubscriptions returns every stored subscription, newest first.
func (l *Log) ListSubscriptions() ([]PushSubscription, error) {
	if l == nil || l.db == nil {
		return nil, ErrClosed
	}
	rows, err := l.db.Query(`
		SELECT id, endpoint, p256dh, auth, user_agent, created_at
		FROM push_subscriptions
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []PushSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscription removes a subscription by endpoint. Deleting an
// unknown endpoint is a no-op.
func (l *Log) DeleteSubscription(endpoint string) error {
	if l == nil || l.db == nil {
		return ErrClosed
	}
	_, err := l.db.Exec(`DELETE FROM push_subscriptions WHERE endpoint = ?`, strings.TrimSpace(endpoint))
	if err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (PushSubscription, error) {
	var sub PushSubscription
	var userAgent sql.NullString
	if err := row.Scan(&sub.ID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &userAgent, &sub.CreatedAt); err != nil {
		return PushSubscription{}, fmt.Errorf("scan push subscription: %w", err)
	}
	if userAgent.Valid {
		sub.UserAgent = userAgent.String
	}
	return sub, nil
}
