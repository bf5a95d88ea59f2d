package debate

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/appliance-labs/debate-platform/internal/model"
)

const taskArchiveTranscript = "archive_transcript"

// task is one queued background job. The queue is delegated to JetStream
// when NATS is configured, otherwise the durable store backs it.
type task struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

func (o *Orchestrator) enqueueTask(ctx context.Context, t task) {
	payload, err := json.Marshal(t)
	if err != nil {
		o.log.Error("task encode failed", zap.Error(err))
		return
	}
	if o.feed != nil {
		err = o.feed.EnqueueTask(ctx, payload)
	} else {
		err = o.durable.EnqueueTask(ctx, payload)
	}
	if err != nil {
		o.log.Warn("task enqueue failed",
			zap.String("type", t.Type),
			zap.String("session_id", t.SessionID),
			zap.Error(err))
	}
}

func (o *Orchestrator) dequeueTask(ctx context.Context) ([]byte, error) {
	if o.feed != nil {
		return o.feed.DequeueTask(ctx)
	}
	return o.durable.DequeueTask(ctx)
}

// ProcessQueuedTasks drains the task queue once and returns the number of
// tasks handled. Failed tasks are logged and dropped; the transcript batches
// they point at remain in the store.
func (o *Orchestrator) ProcessQueuedTasks(ctx context.Context) int {
	handled := 0
	for {
		payload, err := o.dequeueTask(ctx)
		if err != nil {
			o.log.Warn("task dequeue failed", zap.Error(err))
			return handled
		}
		if payload == nil {
			return handled
		}

		var t task
		if err := json.Unmarshal(payload, &t); err != nil {
			o.log.Warn("malformed task dropped", zap.Error(err))
			continue
		}

		switch t.Type {
		case taskArchiveTranscript:
			o.archiveFromBatches(ctx, t.SessionID)
		default:
			o.log.Warn("unknown task type dropped", zap.String("type", t.Type))
		}
		handled++
	}
}

// archiveFromBatches rebuilds the transcript from flushed batches and writes
// the archive row.
func (o *Orchestrator) archiveFromBatches(ctx context.Context, sessionID string) {
	batches, err := o.durable.ListBatches(ctx, sessionID)
	if err != nil {
		o.log.Warn("archive task: batch read failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}
	var transcript []model.Turn
	for _, batch := range batches {
		transcript = append(transcript, batch.Turns...)
	}
	if len(transcript) == 0 {
		return
	}

	location, err := o.durable.Archive(ctx, sessionID, transcript)
	if err != nil {
		o.log.Warn("archive task failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}
	o.log.Info("transcript archived",
		zap.String("session_id", sessionID),
		zap.String("location", location))
}

// RunTaskWorker polls the task queue until the context ends.
func (o *Orchestrator) RunTaskWorker(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.ProcessQueuedTasks(ctx)
		}
	}
}
