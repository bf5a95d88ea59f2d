package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/appliance-labs/debate-platform/internal/model"
)

const (
	// StreamName is the name of the debate event stream.
	StreamName = "DEBATES"

	// SubjectPrefix is the prefix for all debate subjects.
	SubjectPrefix = "debate"

	// TaskSubject carries queued background tasks.
	TaskSubject = "debate.tasks"

	taskConsumer = "task-workers"
)

// Feed publishes debate events and backs the task queue when NATS is
// configured.
type Feed struct {
	client *Client
}

// NewFeed creates a feed over an established client.
func NewFeed(client *Client) *Feed {
	return &Feed{client: client}
}

// EnsureStream ensures the debate stream exists.
func (f *Feed) EnsureStream(ctx context.Context) error {
	js := f.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Debate turn events and queued tasks",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// TurnSubject returns the subject for a session's turn events.
func TurnSubject(sessionID, agent string) string {
	return fmt.Sprintf("%s.%s.turn.%s", SubjectPrefix, sessionID, agent)
}

// PublishTurn publishes one appended turn as an event. Best effort: callers
// log failures and continue.
func (f *Feed) PublishTurn(ctx context.Context, sessionID string, turn model.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	if _, err := f.client.JetStream().Publish(ctx, TurnSubject(sessionID, turn.Agent), data); err != nil {
		return fmt.Errorf("failed to publish turn: %w", err)
	}
	return nil
}

// EnqueueTask publishes a task payload to the queue subject.
func (f *Feed) EnqueueTask(ctx context.Context, payload []byte) error {
	if _, err := f.client.JetStream().Publish(ctx, TaskSubject, payload); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// DequeueTask pulls one task payload, or nil when none is pending.
func (f *Feed) DequeueTask(ctx context.Context) ([]byte, error) {
	js := f.client.JetStream()

	consumer, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       taskConsumer,
		FilterSubject: TaskSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create task consumer: %w", err)
	}

	batch, err := consumer.Fetch(1, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch task: %w", err)
	}

	for msg := range batch.Messages() {
		payload := msg.Data()
		_ = msg.Ack()
		return payload, nil
	}
	return nil, nil
}
