// ABOUTME: SQLite snapshot archive backing the export/import hooks using
// ABOUTME: modernc.org/sqlite with automatic schema creation and WAL mode.

// Package archive persists conversation snapshots outside the in-memory
// store. The conversation Store stays storage-free; the gateway checkpoints
// snapshots here after each turn and restores them on demand.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bthornemail/automata-converse/internal/conversation"
)

// ErrSnapshotNotFound is returned by Load for an unarchived conversation id.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Entry is one archived snapshot's listing row.
type Entry struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	CapturedAt     time.Time `json:"captured_at"`
	TurnCount      int       `json:"turn_count"`
}

// Archive stores conversation snapshots in SQLite, one row per conversation.
// Saving again for the same conversation replaces the earlier snapshot.
type Archive struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the archive database at path. Parent directories are
// created as needed and the schema is applied automatically.
func Open(path string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "archive")

	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}

	// WAL keeps checkpoint writes from blocking reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	a := &Archive{db: db, logger: logger}
	if err := a.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("snapshot archive opened", "path", path)
	return a, nil
}

// createSchema creates the snapshots table if it doesn't exist.
func (a *Archive) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS snapshots (
			conversation_id TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL,
			captured_at     DATETIME NOT NULL,
			turn_count      INTEGER NOT NULL,
			payload         TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_snapshots_user
			ON snapshots(user_id);
	`
	_, err := a.db.Exec(schema)
	return err
}

// Save upserts one snapshot, replacing any earlier snapshot of the same
// conversation.
func (a *Archive) Save(ctx context.Context, snap *conversation.Snapshot) error {
	if snap == nil || snap.Conversation == nil {
		return fmt.Errorf("saving snapshot: %w", conversation.ErrMalformedSnapshot)
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO snapshots (conversation_id, user_id, captured_at, turn_count, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			user_id = excluded.user_id,
			captured_at = excluded.captured_at,
			turn_count = excluded.turn_count,
			payload = excluded.payload
	`, snap.Conversation.ID, snap.Conversation.UserID, snap.CapturedAt.UTC(), len(snap.Conversation.Turns), string(payload))
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	a.logger.Debug("snapshot saved",
		"conversation_id", snap.Conversation.ID,
		"turns", len(snap.Conversation.Turns))
	return nil
}

// Load returns the archived snapshot for a conversation id, or
// ErrSnapshotNotFound.
func (a *Archive) Load(ctx context.Context, conversationID string) (*conversation.Snapshot, error) {
	var payload string
	err := a.db.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE conversation_id = ?`, conversationID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	var snap conversation.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot %q: %w", conversationID, conversation.ErrMalformedSnapshot)
	}
	return &snap, nil
}

// List returns one entry per archived conversation, most recently captured
// first.
func (a *Archive) List(ctx context.Context) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT conversation_id, user_id, captured_at, turn_count
		FROM snapshots
		ORDER BY captured_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ConversationID, &entry.UserID, &entry.CapturedAt, &entry.TurnCount); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot rows: %w", err)
	}
	return out, nil
}

// Delete removes one archived snapshot. Deleting an absent id is a no-op.
func (a *Archive) Delete(ctx context.Context, conversationID string) error {
	if _, err := a.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}

// Count returns the number of archived snapshots.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting snapshots: %w", err)
	}
	return n, nil
}

// Ping verifies the database is reachable.
func (a *Archive) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
