package model

import (
	"time"
)

// State is the session's position in the debate flow. Transitions are
// monotonic: welcome -> initial_debate -> ongoing_debate -> conclusion.
type State string

const (
	StateWelcome       State = "welcome"
	StateInitialDebate State = "initial_debate"
	StateOngoingDebate State = "ongoing_debate"
	StateConclusion    State = "conclusion"
)

// MaxAskedQuestions bounds the per-session moderator question memory.
// Oldest entries are evicted first.
const MaxAskedQuestions = 20

// Session is one end-to-end buy-vs-subscribe debate.
type Session struct {
	SessionID string `json:"sessionId"`

	// ConversationID keys the current persistence batch. It is regenerated on
	// every flush, not stable across the session.
	ConversationID string `json:"conversationId"`

	ProductID string            `json:"productId,omitempty"`
	State     State             `json:"state"`
	History   []Turn            `json:"conversationHistory"`
	TurnCount int               `json:"turnCount"`
	UserData  map[string]string `json:"userData,omitempty"`

	// AskedQuestions holds moderator questions already posed in this session,
	// newest last.
	AskedQuestions []string `json:"askedQuestions,omitempty"`

	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Append adds turns to the transcript. History is append-only; callers must
// never reorder or mutate prior entries.
func (s *Session) Append(turns ...Turn) {
	s.History = append(s.History, turns...)
}

// Touch records client activity for the idle reaper.
func (s *Session) Touch() {
	s.LastActivity = time.Now().UTC()
}

// RememberQuestion records a moderator question, evicting the oldest entry
// once the bound is reached.
func (s *Session) RememberQuestion(q string) {
	s.AskedQuestions = append(s.AskedQuestions, q)
	if len(s.AskedQuestions) > MaxAskedQuestions {
		s.AskedQuestions = s.AskedQuestions[len(s.AskedQuestions)-MaxAskedQuestions:]
	}
}

// HasAskedQuestion reports whether q was already posed, character for
// character, in this session.
func (s *Session) HasAskedQuestion(q string) bool {
	for _, prev := range s.AskedQuestions {
		if prev == q {
			return true
		}
	}
	return false
}
