package model

// MessageType classifies a client chat message.
type MessageType string

const (
	MessageTypeText          MessageType = "text"
	MessageTypeStart         MessageType = "start"
	MessageTypeQuickResponse MessageType = "quick_response"
	MessageTypeConclusion    MessageType = "conclusion"
)

// InitChatRequest is the body of POST /chat/init.
type InitChatRequest struct {
	ProductID string            `json:"productId,omitempty"`
	UserData  map[string]string `json:"userData,omitempty"`
}

// InitChatResponse returns the new session and its welcome turn.
type InitChatResponse struct {
	SessionID string `json:"sessionId"`
	Message   Turn   `json:"message"`
	State     State  `json:"state"`
}

// ChatMessageRequest is the body of POST /chat/message and its streaming
// variant.
type ChatMessageRequest struct {
	SessionID   string      `json:"sessionId"`
	Message     string      `json:"message,omitempty"`
	MessageType MessageType `json:"messageType,omitempty"`
}

// ChatMessageResponse carries the turns produced by one orchestrator step.
// Single-turn steps (welcome re-prompt, conclusion) set Message; the
// three-step debate turn sets Messages.
type ChatMessageResponse struct {
	Messages []Turn `json:"messages,omitempty"`
	Message  *Turn  `json:"message,omitempty"`
	State    State  `json:"state"`
}

// HistoryResponse is the body of GET /chat/history/{sessionId}.
type HistoryResponse struct {
	SessionID string `json:"sessionId"`
	History   []Turn `json:"conversationHistory"`
	State     State  `json:"state"`
	TurnCount int    `json:"turnCount"`
}

// SSE frame types emitted by the streaming transport.
const (
	FrameStream  = "stream"
	FrameMessage = "message"
	FrameEnd     = "end"
	FrameError   = "error"
)

// StreamFrame is one SSE data payload. Exactly one of the optional fields is
// set depending on Type.
type StreamFrame struct {
	Type    string `json:"type"`
	Data    *Turn  `json:"data,omitempty"`
	Agent   string `json:"agent,omitempty"`
	Content string `json:"content,omitempty"`
	State   State  `json:"state,omitempty"`
	Message string `json:"message,omitempty"`
}
