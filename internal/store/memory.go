package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/appliance-labs/debate-platform/internal/model"
)

// MemoryStore is the in-process fallback used when no DSN is configured.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*SessionRecord
	batches  map[string][]Batch
	archives map[string][]model.Turn
	tasks    [][]byte
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*SessionRecord),
		batches:  make(map[string][]Batch),
		archives: make(map[string][]model.Turn),
	}
}

// CreateSession stores a new session record.
func (s *MemoryStore) CreateSession(_ context.Context, rec *SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.sessions[rec.SessionID] = &cp
	return nil
}

// GetSession returns the record for sessionID.
func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (*SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// UpdateSession applies a patch to an existing record.
func (s *MemoryStore) UpdateSession(_ context.Context, sessionID string, patch SessionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if patch.State != "" {
		rec.State = patch.State
	}
	if patch.TurnCount > 0 {
		rec.TurnCount = patch.TurnCount
	}
	rec.LastActivity = patch.LastActivity
	return nil
}

// AppendBatch stores one transcript batch.
func (s *MemoryStore) AppendBatch(_ context.Context, sessionID, batchID string, turns []model.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]model.Turn, len(turns))
	copy(cp, turns)
	s.batches[sessionID] = append(s.batches[sessionID], Batch{
		BatchID:   batchID,
		Timestamp: time.Now().UTC(),
		Turns:     cp,
	})
	return nil
}

// ListBatches returns batches ordered by timestamp ascending.
func (s *MemoryStore) ListBatches(_ context.Context, sessionID string) ([]Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batches := make([]Batch, len(s.batches[sessionID]))
	copy(batches, s.batches[sessionID])
	sort.SliceStable(batches, func(i, j int) bool {
		return batches[i].Timestamp.Before(batches[j].Timestamp)
	})
	return batches, nil
}

// Archive stores the full transcript.
func (s *MemoryStore) Archive(_ context.Context, sessionID string, transcript []model.Turn) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]model.Turn, len(transcript))
	copy(cp, transcript)
	s.archives[sessionID] = cp
	return fmt.Sprintf("memory://archives/%s", sessionID), nil
}

// EnqueueTask appends a task payload.
func (s *MemoryStore) EnqueueTask(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(payload))
	copy(cp, payload)
	s.tasks = append(s.tasks, cp)
	return nil
}

// DequeueTask pops the oldest task payload, or nil when empty.
func (s *MemoryStore) DequeueTask(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) == 0 {
		return nil, nil
	}
	payload := s.tasks[0]
	s.tasks = s.tasks[1:]
	return payload, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
