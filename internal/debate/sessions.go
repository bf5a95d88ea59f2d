// Package debate drives the buy-vs-subscribe session flow: the state
// machine, the three-step debate turn, streaming delivery and lifecycle
// maintenance.
package debate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appliance-labs/debate-platform/internal/model"
	"github.com/appliance-labs/debate-platform/internal/store"
	"github.com/appliance-labs/debate-platform/pkg/logger"
	"github.com/appliance-labs/debate-platform/pkg/metrics"
)

// ErrSessionNotFound is returned when a session id is unknown both in memory
// and in the durable store.
var ErrSessionNotFound = errors.New("session not found")

// Sessions is the in-memory session registry. The live transcript always
// lives here; the durable store holds flushed batches for recovery.
type Sessions struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	durable  store.Store
	log      *logger.Logger
}

// NewSessions builds the registry over a durable store.
func NewSessions(durable store.Store, log *logger.Logger) *Sessions {
	return &Sessions{
		sessions: make(map[string]*model.Session),
		durable:  durable,
		log:      log,
	}
}

// Create registers a new session in the welcome state.
func (s *Sessions) Create(productID string, userData map[string]string) *model.Session {
	now := time.Now().UTC()
	session := &model.Session{
		SessionID:      uuid.Must(uuid.NewV7()).String(),
		ConversationID: uuid.Must(uuid.NewV7()).String(),
		ProductID:      productID,
		State:          model.StateWelcome,
		UserData:       userData,
		CreatedAt:      now,
		LastActivity:   now,
	}

	s.mu.Lock()
	s.sessions[session.SessionID] = session
	s.mu.Unlock()

	metrics.SessionsTotal.Inc()
	metrics.SessionsActive.Inc()
	return session
}

// Get returns the live session, rehydrating from the durable store if the
// session was reaped or the process restarted.
func (s *Sessions) Get(ctx context.Context, sessionID string) (*model.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		return session, nil
	}
	return s.rehydrate(ctx, sessionID)
}

// rehydrate rebuilds a session from its durable record plus flushed batches
// concatenated in timestamp order. Unflushed turns are gone; the state,
// turn count and batch history survive.
func (s *Sessions) rehydrate(ctx context.Context, sessionID string) (*model.Session, error) {
	rec, err := s.durable.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	batches, err := s.durable.ListBatches(ctx, sessionID)
	if err != nil {
		s.log.Warn("batch rehydration failed, continuing with empty history",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	session := &model.Session{
		SessionID:      rec.SessionID,
		ConversationID: uuid.Must(uuid.NewV7()).String(),
		ProductID:      rec.ProductID,
		State:          rec.State,
		TurnCount:      rec.TurnCount,
		UserData:       rec.UserData,
		CreatedAt:      rec.CreatedAt,
		LastActivity:   time.Now().UTC(),
	}
	for _, batch := range batches {
		session.History = append(session.History, batch.Turns...)
	}

	s.mu.Lock()
	// Another request may have rehydrated concurrently; keep the first one.
	if existing, ok := s.sessions[sessionID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.sessions[sessionID] = session
	s.mu.Unlock()

	metrics.SessionsActive.Inc()
	s.log.Info("session rehydrated from durable store",
		zap.String("session_id", sessionID),
		zap.Int("batches", len(batches)),
		zap.String("state", string(session.State)))
	return session, nil
}

// Evict removes a session from memory. The durable record stays.
func (s *Sessions) Evict(sessionID string) {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if ok {
		metrics.SessionsActive.Dec()
	}
}

// All returns a snapshot of every session held in memory.
func (s *Sessions) All() []*model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*model.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		all = append(all, session)
	}
	return all
}

// Len reports the number of sessions held in memory.
func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
