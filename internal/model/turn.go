// Package model defines data structures for the debate platform.
package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Speaker labels for turns. Every non-user turn carries the label of the
// agent that produced it.
const (
	AgentPurchase     = "purchase_bot"
	AgentSubscription = "subscription_bot"
	AgentModerator    = "moderator"
	AgentUser         = "user"
	AgentSystem       = "system"
)

// FillerContent replaces empty or whitespace-only completions so that a turn
// is never stored with empty content.
const FillerContent = "애매하긴해"

// Turn is one recorded message in a session transcript.
type Turn struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// QuickResponses are short suggested replies attached to moderator turns.
	QuickResponses []string `json:"quickResponses,omitempty"`

	// Verdict is populated on the conclusion turn only.
	Verdict *Verdict `json:"verdict,omitempty"`

	// Err tags fallback turns produced after provider failure. Observability
	// only; clients render Content as usual.
	Err string `json:"error,omitempty"`

	ConversationEnded bool `json:"conversationEnded,omitempty"`
}

// NewUserTurn builds a turn for a raw user utterance.
func NewUserTurn(id, content string) Turn {
	return Turn{
		ID:        id,
		Agent:     AgentUser,
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}
