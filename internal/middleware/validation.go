package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/appliance-labs/debate-platform/internal/model"
)

// maxMessageLength bounds a single client utterance in runes.
const maxMessageLength = 2000

// maxBodyBytes bounds request bodies before decoding.
const maxBodyBytes = 64 * 1024

var validMessageTypes = map[model.MessageType]bool{
	model.MessageTypeText:          true,
	model.MessageTypeStart:         true,
	model.MessageTypeQuickResponse: true,
	model.MessageTypeConclusion:    true,
}

// ValidateChatMessage rejects malformed message bodies before they reach the
// orchestrator. The body is restored for the handler to decode again.
func ValidateChatMessage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			validationError(w, "unable to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		var req model.ChatMessageRequest
		if err := json.Unmarshal(body, &req); err != nil {
			validationError(w, "invalid JSON body")
			return
		}

		if req.SessionID == "" {
			validationError(w, "sessionId is required")
			return
		}
		if _, err := uuid.Parse(req.SessionID); err != nil {
			validationError(w, "sessionId must be a valid UUID")
			return
		}

		if !utf8.ValidString(req.Message) {
			validationError(w, "message must be valid UTF-8")
			return
		}
		if utf8.RuneCountInString(req.Message) > maxMessageLength {
			validationError(w, "message exceeds maximum length")
			return
		}

		if req.MessageType != "" && !validMessageTypes[req.MessageType] {
			validationError(w, "unknown messageType")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func validationError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
		"code":  http.StatusBadRequest,
	})
}
