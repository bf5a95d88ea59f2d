package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/appliance-labs/debate-platform/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id    TEXT PRIMARY KEY,
	product_id    TEXT NOT NULL DEFAULT '',
	state         TEXT NOT NULL,
	turn_count    INTEGER NOT NULL DEFAULT 0,
	user_data     TEXT NOT NULL DEFAULT '{}',
	created_at    TEXT NOT NULL,
	last_activity TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS conversation_batches (
	session_id TEXT NOT NULL,
	batch_id   TEXT NOT NULL,
	turns      TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (session_id, batch_id)
);
CREATE TABLE IF NOT EXISTS archives (
	session_id TEXT NOT NULL,
	location   TEXT NOT NULL,
	transcript TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	payload BLOB NOT NULL
);
`

// SQLiteStore is the durable backend selected by STORE_DSN.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and ensures the schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent flushes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// CreateSession stores a new session record.
func (s *SQLiteStore) CreateSession(ctx context.Context, rec *SessionRecord) error {
	userData, err := json.Marshal(rec.UserData)
	if err != nil {
		return fmt.Errorf("failed to encode user data: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, product_id, state, turn_count, user_data, created_at, last_activity)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.ProductID, string(rec.State), rec.TurnCount,
		string(userData), rec.CreatedAt.Format(time.RFC3339Nano), rec.LastActivity.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession returns the record for sessionID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, product_id, state, turn_count, user_data, created_at, last_activity
		 FROM sessions WHERE session_id = ?`, sessionID)

	var rec SessionRecord
	var state, userData, createdAt, lastActivity string
	err := row.Scan(&rec.SessionID, &rec.ProductID, &state, &rec.TurnCount, &userData, &createdAt, &lastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	rec.State = model.State(state)
	if err := json.Unmarshal([]byte(userData), &rec.UserData); err != nil {
		return nil, fmt.Errorf("failed to decode user data: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.LastActivity, _ = time.Parse(time.RFC3339Nano, lastActivity)
	return &rec, nil
}

// UpdateSession applies a patch to an existing record.
func (s *SQLiteStore) UpdateSession(ctx context.Context, sessionID string, patch SessionPatch) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET
			state = CASE WHEN ? != '' THEN ? ELSE state END,
			turn_count = CASE WHEN ? > 0 THEN ? ELSE turn_count END,
			last_activity = ?
		 WHERE session_id = ?`,
		string(patch.State), string(patch.State),
		patch.TurnCount, patch.TurnCount,
		patch.LastActivity.Format(time.RFC3339Nano), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendBatch stores one transcript batch.
func (s *SQLiteStore) AppendBatch(ctx context.Context, sessionID, batchID string, turns []model.Turn) error {
	encoded, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to encode turns: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_batches (session_id, batch_id, turns, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, batchID, string(encoded), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append batch: %w", err)
	}
	return nil
}

// ListBatches returns batches ordered by timestamp ascending.
func (s *SQLiteStore) ListBatches(ctx context.Context, sessionID string) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_id, turns, created_at FROM conversation_batches
		 WHERE session_id = ? ORDER BY created_at ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		var turns, createdAt string
		if err := rows.Scan(&b.BatchID, &turns, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		if err := json.Unmarshal([]byte(turns), &b.Turns); err != nil {
			return nil, fmt.Errorf("failed to decode batch turns: %w", err)
		}
		b.Timestamp, _ = time.Parse(time.RFC3339Nano, createdAt)
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// Archive stores the full transcript.
func (s *SQLiteStore) Archive(ctx context.Context, sessionID string, transcript []model.Turn) (string, error) {
	encoded, err := json.Marshal(transcript)
	if err != nil {
		return "", fmt.Errorf("failed to encode transcript: %w", err)
	}

	location := fmt.Sprintf("sqlite://archives/%s/%d", sessionID, time.Now().UnixMilli())
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO archives (session_id, location, transcript, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, location, string(encoded), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("failed to archive transcript: %w", err)
	}
	return location, nil
}

// EnqueueTask appends a task payload.
func (s *SQLiteStore) EnqueueTask(ctx context.Context, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tasks (payload) VALUES (?)`, payload)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// DequeueTask pops the oldest task payload, or nil when empty.
func (s *SQLiteStore) DequeueTask(ctx context.Context) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, payload FROM tasks ORDER BY id ASC LIMIT 1`)

	var id int64
	var payload []byte
	err := row.Scan(&id, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to remove task: %w", err)
	}
	return payload, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
