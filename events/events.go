// Package events implements the per-conversation streaming event bus: an
// ordered, bounded-replay log of progress events with fan-out to any number
// of subscribers.
package events

import (
	"github.com/liveeadmin/shai/errors"
	"github.com/liveeadmin/shai/session"
)

// Type tags an Event variant.
type Type string

const (
	// TypeTextDelta carries a chunk of assistant text.
	TypeTextDelta Type = "text-delta"
	// TypeToolCallStarted marks a tool call entering execution.
	TypeToolCallStarted Type = "tool-call-started"
	// TypeToolCallFinished carries the result of a tool call.
	TypeToolCallFinished Type = "tool-call-finished"
	// TypeTurnCompleted marks the end of one user turn.
	TypeTurnCompleted Type = "turn-completed"
	// TypeError carries a conversation-fatal failure.
	TypeError Type = "error"
	// TypeConversationEnded is the single terminal event of a conversation.
	TypeConversationEnded Type = "conversation-ended"
)

// Event is one ordered unit of progress published for a conversation.
// Seq is assigned by the bus and is strictly increasing per conversation.
type Event struct {
	Seq  uint64 `json:"seq"`
	Type Type   `json:"type"`

	// Text is set for text-delta events.
	Text string `json:"text,omitempty"`
	// Call is set for tool-call-started events.
	Call *session.ToolCall `json:"call,omitempty"`
	// Result is set for tool-call-finished events.
	Result *session.ToolResult `json:"result,omitempty"`
	// Status accompanies turn-completed and conversation-ended events.
	Status session.Status `json:"status,omitempty"`
	// Reason explains a conversation-ended event (e.g. a cancellation).
	Reason string `json:"reason,omitempty"`
	// ErrKind and ErrMessage describe an error event.
	ErrKind    errors.Kind `json:"err_kind,omitempty"`
	ErrMessage string      `json:"err_message,omitempty"`
}

// Terminal reports whether e closes the stream.
func (e Event) Terminal() bool { return e.Type == TypeConversationEnded }
