// Package eventlog persists engine signals to a local SQLite database so
// that dropped or malformed backend traffic stays inspectable after the
// fact. The same database stores Web Push subscriptions.
package eventlog

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/odvcencio/overseer/pkg/observability"
	"github.com/odvcencio/overseer/pkg/telemetry"
)

//go:embed schema.sql
var schemaSQL string

// ErrClosed indicates the underlying database connection is unavailable.
var ErrClosed = errors.New("eventlog: closed")

// DefaultRecentLimit caps Recent queries that do not request a limit.
const DefaultRecentLimit = 200

// Record is one logged engine signal.
type Record struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	WorkspaceID string          `json:"workspaceId,omitempty"`
	ThreadID    string          `json:"threadId,omitempty"`
	Method      string          `json:"method"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Log is an append-only event store backed by SQLite.
type Log struct {
	db     *sql.DB
	logger *observability.Logger
}

// Open creates or opens the event database at path and applies the
// schema. The file and its directory are kept private: payloads can
// contain prompt text.
func Open(path string, logger *observability.Logger) (*Log, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create event log dir: %w", err)
		}
	}
	if err := ensurePrivateFile(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	// One writer plus concurrent readers; WAL keeps readers off the
	// writer's lock.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure event log: %w", err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply event log schema: %w", err)
	}

	return &Log{db: db, logger: logger}, nil
}

func ensurePrivateFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat event log: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("create event log: %w", err)
	}
	return f.Close()
}

// Close closes the database.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Append writes one record. A missing ID or timestamp is filled in.
func (l *Log) Append(rec Record) error {
	if l == nil || l.db == nil {
		return ErrClosed
	}
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	_, err := l.db.Exec(`
		INSERT INTO events (id, ts, workspace_id, thread_id, method, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Timestamp.UTC(), rec.WorkspaceID, rec.ThreadID, rec.Method, string(rec.Payload))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Recent returns the newest records, newest first. An empty workspaceID
// matches every workspace. ULIDs sort by creation time, so ordering by
// id is ordering by time.
func (l *Log) Recent(workspaceID string, limit int) ([]Record, error) {
	if l == nil || l.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `
		SELECT id, ts, workspace_id, thread_id, method, payload
		FROM events
	`
	args := []any{}
	if workspaceID != "" {
		query += ` WHERE workspace_id = ?`
		args = append(args, workspaceID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var payload string
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.WorkspaceID, &rec.ThreadID, &rec.Method, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if payload != "" {
			rec.Payload = json.RawMessage(payload)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes records older than the retention window and reports how
// many went.
func (l *Log) Prune(retention time.Duration) (int64, error) {
	if l == nil || l.db == nil {
		return 0, ErrClosed
	}
	cutoff := time.Now().Add(-retention)
	res, err := l.db.Exec(`DELETE FROM events WHERE ts <= ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows, nil
}

// Follow subscribes to the hub and appends every signal until the
// returned stop function runs or the hub closes. Append failures are
// logged and skipped; the log never blocks the engine.
func (l *Log) Follow(hub *telemetry.Hub) func() {
	signals, cancel := hub.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for sig := range signals {
			payload, err := json.Marshal(sig)
			if err != nil {
				continue
			}
			rec := Record{
				Timestamp:   sig.Timestamp,
				WorkspaceID: sig.WorkspaceID,
				ThreadID:    sig.ThreadID,
				Method:      string(sig.Kind),
				Payload:     payload,
			}
			if err := l.Append(rec); err != nil {
				l.logger.Warn("event log append failed", "method", rec.Method, "error", err)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
