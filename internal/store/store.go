// Package store persists sessions, conversation batches, transcript archives
// and queued tasks. The SQLite backend is selected by DSN; without one an
// in-process map store serves the identical contract so callers carry no
// conditional logic.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/appliance-labs/debate-platform/internal/model"
)

// ErrNotFound is returned when a session record does not exist.
var ErrNotFound = errors.New("session record not found")

// SessionRecord is the durable view of a session, without the live
// transcript. History lives in batches.
type SessionRecord struct {
	SessionID    string            `json:"sessionId"`
	ProductID    string            `json:"productId,omitempty"`
	State        model.State       `json:"state"`
	TurnCount    int               `json:"turnCount"`
	UserData     map[string]string `json:"userData,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastActivity time.Time         `json:"lastActivity"`
}

// SessionPatch carries the mutable fields of an update. Zero values are
// skipped except LastActivity, which is always written.
type SessionPatch struct {
	State        model.State
	TurnCount    int
	LastActivity time.Time
}

// Batch is one persisted slice of the transcript, keyed by the conversation
// id current at flush time.
type Batch struct {
	BatchID   string       `json:"batchId"`
	Timestamp time.Time    `json:"timestamp"`
	Turns     []model.Turn `json:"turns"`
}

// Store is the durable store adapter contract.
type Store interface {
	CreateSession(ctx context.Context, rec *SessionRecord) error
	GetSession(ctx context.Context, sessionID string) (*SessionRecord, error)
	UpdateSession(ctx context.Context, sessionID string, patch SessionPatch) error

	// AppendBatch stores one transcript batch. Batches are append-only.
	AppendBatch(ctx context.Context, sessionID, batchID string, turns []model.Turn) error

	// ListBatches returns all batches for a session ordered by timestamp
	// ascending.
	ListBatches(ctx context.Context, sessionID string) ([]Batch, error)

	// Archive exports the complete transcript at conversation end and returns
	// its location. Best effort; callers log failures and continue.
	Archive(ctx context.Context, sessionID string, transcript []model.Turn) (string, error)

	// EnqueueTask and DequeueTask form a generic async task primitive.
	// DequeueTask returns nil when the queue is empty.
	EnqueueTask(ctx context.Context, payload []byte) error
	DequeueTask(ctx context.Context) ([]byte, error)

	Close() error
}
