package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/appliance-labs/debate-platform/internal/debate"
	"github.com/appliance-labs/debate-platform/internal/middleware"
	"github.com/appliance-labs/debate-platform/internal/model"
	"github.com/appliance-labs/debate-platform/pkg/logger"
)

// ChatHandler serves the debate session endpoints.
type ChatHandler struct {
	orch *debate.Orchestrator
	log  *logger.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(orch *debate.Orchestrator, log *logger.Logger) *ChatHandler {
	return &ChatHandler{orch: orch, log: log}
}

// Init handles POST /api/chat/init.
func (h *ChatHandler) Init(w http.ResponseWriter, r *http.Request) {
	var req model.InitChatRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	// When the request came through the JWT middleware, tie the session to
	// the authenticated user.
	if userID, ok := middleware.GetUserID(r.Context()); ok {
		if req.UserData == nil {
			req.UserData = make(map[string]string)
		}
		req.UserData["userId"] = userID
	}

	session, welcome := h.orch.InitSession(r.Context(), req.ProductID, req.UserData)
	writeJSON(w, http.StatusOK, model.InitChatResponse{
		SessionID: session.SessionID,
		Message:   welcome,
		State:     session.State,
	})
}

// Message handles POST /api/chat/message: one synchronous orchestration step.
func (h *ChatHandler) Message(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeMessageRequest(w, r)
	if !ok {
		return
	}

	turns, state, err := h.orch.ProcessMessage(r.Context(), req)
	if err != nil {
		h.respondOrchestrationError(w, req.SessionID, err)
		return
	}

	resp := model.ChatMessageResponse{State: state}
	if len(turns) == 1 {
		resp.Message = &turns[0]
	} else {
		resp.Messages = turns
	}
	writeJSON(w, http.StatusOK, resp)
}

// History handles GET /api/chat/history/{sessionId}.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	resp, err := h.orch.History(r.Context(), sessionID)
	if err != nil {
		h.respondOrchestrationError(w, sessionID, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// End handles DELETE /api/chat/session/{sessionId} and POST /api/chat/end:
// flush and evict.
func (h *ChatHandler) End(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		var req struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
			writeError(w, http.StatusBadRequest, "sessionId is required")
			return
		}
		sessionID = req.SessionID
	}

	if err := h.orch.EndSession(r.Context(), sessionID); err != nil {
		h.respondOrchestrationError(w, sessionID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended", "sessionId": sessionID})
}

// Cleanup handles POST /api/chat/cleanup: a manual idle-reaper pass, gated
// behind the admin key.
func (h *ChatHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	reaped := h.orch.CleanupIdle(r.Context())
	writeJSON(w, http.StatusOK, map[string]int{"reaped": reaped})
}

func (h *ChatHandler) respondOrchestrationError(w http.ResponseWriter, sessionID string, err error) {
	if errors.Is(err, debate.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	h.log.Error("orchestration failed",
		zap.String("session_id", sessionID),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func decodeMessageRequest(w http.ResponseWriter, r *http.Request) (*model.ChatMessageRequest, bool) {
	var req model.ChatMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return nil, false
	}
	if req.MessageType == "" {
		req.MessageType = model.MessageTypeText
	}
	return &req, true
}
