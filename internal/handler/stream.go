package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/appliance-labs/debate-platform/internal/debate"
	"github.com/appliance-labs/debate-platform/internal/model"
	"github.com/appliance-labs/debate-platform/pkg/logger"
	"github.com/appliance-labs/debate-platform/pkg/metrics"
)

// StreamHandler serves the SSE variant of the message endpoint.
type StreamHandler struct {
	orch *debate.Orchestrator
	log  *logger.Logger
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(orch *debate.Orchestrator, log *logger.Logger) *StreamHandler {
	return &StreamHandler{orch: orch, log: log}
}

// sseEmitter writes stream frames as SSE events. Writes after the client
// disconnects fail; the orchestrator keeps going regardless.
type sseEmitter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	done    <-chan struct{}
}

func (e *sseEmitter) Emit(frame model.StreamFrame) error {
	select {
	case <-e.done:
		return fmt.Errorf("client disconnected")
	default:
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

// Message handles POST /api/chat/message/stream. Each agent turn is emitted
// as a "stream" frame followed by a "message" frame; the response ends with
// an "end" frame carrying the final session state.
func (h *StreamHandler) Message(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeMessageRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	emitter := &sseEmitter{w: w, flusher: flusher, done: r.Context().Done()}

	state, err := h.orch.ProcessMessageStream(r.Context(), req, emitter)
	if err != nil {
		h.log.Error("stream orchestration failed",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		_ = emitter.Emit(model.StreamFrame{Type: model.FrameError, Message: err.Error()})
		return
	}

	_ = emitter.Emit(model.StreamFrame{Type: model.FrameEnd, State: state})
}
