// Package session holds the conversation data model: messages, tool calls,
// tool results, and the append-only Conversation log they live in.
package session

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// Status is the lifecycle state of a Conversation. A conversation reaches at
// most one terminal status.
type Status string

const (
	// StatusRunning means the conversation is live with no active turn.
	StatusRunning       Status = "running"
	StatusAwaitingModel Status = "awaiting-model"
	StatusAwaitingTool  Status = "awaiting-tool"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
	StatusFailed        Status = "failed"
)

// Terminal reports whether s ends the conversation.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

// CallStatus is the lifecycle state of a single ToolCall. Transitions are
// forward-only: pending -> running -> {succeeded|failed|cancelled}.
type CallStatus string

const (
	CallPending   CallStatus = "pending"
	CallRunning   CallStatus = "running"
	CallSucceeded CallStatus = "succeeded"
	CallFailed    CallStatus = "failed"
	CallCancelled CallStatus = "cancelled"
)

// Terminal reports whether s ends the tool call.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallSucceeded, CallFailed, CallCancelled:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is a legal forward step.
func (s CallStatus) CanTransition(next CallStatus) bool {
	switch s {
	case CallPending:
		return next == CallRunning || next == CallCancelled
	case CallRunning:
		return next.Terminal()
	}
	return false
}

// Message is one entry in a Conversation. Seq is assigned by the owning
// Conversation and is strictly increasing.
type Message struct {
	Seq       int        `json:"seq"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ToolCallID string                 `json:"tool_call_id"`
	Name       string                 `json:"name"`
	Args       map[string]interface{} `json:"args,omitempty"`
	Status     CallStatus             `json:"status,omitempty"`
}

// ToolResult answers exactly one ToolCall. Failures are carried in Error with
// a terminal Status rather than propagating as Go errors.
type ToolResult struct {
	ToolCallID string        `json:"tool_call_id"`
	Output     string        `json:"output,omitempty"`
	Error      string        `json:"error,omitempty"`
	Status     CallStatus    `json:"status"`
	Duration   time.Duration `json:"duration"`
}

// Text returns the payload that gets fed back to the model: the output on
// success, the error description otherwise.
func (r ToolResult) Text() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Output
}
