package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/appliance-labs/debate-platform/internal/model"
)

// backends returns a fresh instance of every Store implementation. Both must
// honor the identical contract.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "debate.db"))
	if err != nil {
		t.Fatalf("sqlite open failed: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func testRecord(id string) *SessionRecord {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &SessionRecord{
		SessionID:    id,
		ProductID:    "wm-001",
		State:        model.StateWelcome,
		UserData:     map[string]string{"channel": "web"},
		CreatedAt:    now,
		LastActivity: now,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.CreateSession(ctx, testRecord("s-1")); err != nil {
				t.Fatalf("create failed: %v", err)
			}

			rec, err := s.GetSession(ctx, "s-1")
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			if rec.ProductID != "wm-001" || rec.State != model.StateWelcome {
				t.Fatalf("record mismatch: %+v", rec)
			}
			if rec.UserData["channel"] != "web" {
				t.Fatalf("user data lost: %+v", rec.UserData)
			}
		})
	}
}

func TestGetSessionNotFound(t *testing.T) {
	t.Parallel()

	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			if _, err := s.GetSession(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestUpdateSessionPatchesFields(t *testing.T) {
	t.Parallel()

	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.CreateSession(ctx, testRecord("s-2")); err != nil {
				t.Fatalf("create failed: %v", err)
			}

			later := time.Now().UTC().Add(time.Minute).Truncate(time.Millisecond)
			err := s.UpdateSession(ctx, "s-2", SessionPatch{
				State:        model.StateOngoingDebate,
				TurnCount:    7,
				LastActivity: later,
			})
			if err != nil {
				t.Fatalf("update failed: %v", err)
			}

			rec, err := s.GetSession(ctx, "s-2")
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			if rec.State != model.StateOngoingDebate || rec.TurnCount != 7 {
				t.Fatalf("patch not applied: %+v", rec)
			}
			if !rec.LastActivity.Equal(later) {
				t.Fatalf("last activity not updated: %v", rec.LastActivity)
			}
		})
	}
}

func TestBatchesOrderedByTimestamp(t *testing.T) {
	t.Parallel()

	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			turnsA := []model.Turn{{ID: "t-1", Agent: model.AgentUser, Content: "시작하자"}}
			turnsB := []model.Turn{{ID: "t-2", Agent: model.AgentModerator, Content: "결론이긴해"}}

			if err := s.AppendBatch(ctx, "s-3", "b-1", turnsA); err != nil {
				t.Fatalf("append failed: %v", err)
			}
			time.Sleep(5 * time.Millisecond)
			if err := s.AppendBatch(ctx, "s-3", "b-2", turnsB); err != nil {
				t.Fatalf("append failed: %v", err)
			}

			batches, err := s.ListBatches(ctx, "s-3")
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(batches) != 2 {
				t.Fatalf("expected 2 batches, got %d", len(batches))
			}
			if batches[0].BatchID != "b-1" || batches[1].BatchID != "b-2" {
				t.Fatalf("batches out of order: %s, %s", batches[0].BatchID, batches[1].BatchID)
			}
			if batches[0].Turns[0].Content != "시작하자" {
				t.Fatalf("turn content lost: %+v", batches[0].Turns)
			}
		})
	}
}

func TestArchiveReturnsLocation(t *testing.T) {
	t.Parallel()

	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			location, err := s.Archive(context.Background(), "s-4", []model.Turn{{ID: "t-9", Content: "끝"}})
			if err != nil {
				t.Fatalf("archive failed: %v", err)
			}
			if location == "" {
				t.Fatal("archive must return a location")
			}
		})
	}
}

func TestTaskQueueFIFO(t *testing.T) {
	t.Parallel()

	for name, s := range backends(t) {
		s := s
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.EnqueueTask(ctx, []byte("first")); err != nil {
				t.Fatalf("enqueue failed: %v", err)
			}
			if err := s.EnqueueTask(ctx, []byte("second")); err != nil {
				t.Fatalf("enqueue failed: %v", err)
			}

			payload, err := s.DequeueTask(ctx)
			if err != nil {
				t.Fatalf("dequeue failed: %v", err)
			}
			if !bytes.Equal(payload, []byte("first")) {
				t.Fatalf("expected first payload, got %q", payload)
			}

			payload, _ = s.DequeueTask(ctx)
			if !bytes.Equal(payload, []byte("second")) {
				t.Fatalf("expected second payload, got %q", payload)
			}

			payload, err = s.DequeueTask(ctx)
			if err != nil {
				t.Fatalf("dequeue on empty queue failed: %v", err)
			}
			if payload != nil {
				t.Fatalf("empty queue must return nil, got %q", payload)
			}
		})
	}
}
