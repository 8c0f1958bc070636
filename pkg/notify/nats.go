package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS publishes notification events to a NATS subject for remote
// consumers (a phone relay, another machine's tray icon).
type NATS struct {
	conn    *nats.Conn
	subject string
}

// NATSConfig configures the NATS connection.
type NATSConfig struct {
	// URL is the NATS server URL
	URL string

	// Subject is the base subject; the event kind is appended
	Subject string

	// ConnectTimeout is the connection timeout
	ConnectTimeout time.Duration
}

// NewNATS creates a NATS publisher adapter.
func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = "overseer.notify"
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(cfg.ConnectTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return &NATS{
		conn:    conn,
		subject: cfg.Subject,
	}, nil
}

// Name returns the adapter name.
func (n *NATS) Name() string {
	return "nats"
}

// Send publishes the event as JSON on subject.<kind>.
func (n *NATS) Send(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.conn.Publish(fmt.Sprintf("%s.%s", n.subject, ev.Kind), data)
}

// Close closes the NATS connection.
func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}
