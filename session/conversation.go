package session

import (
	"sync"

	"github.com/liveeadmin/shai/errors"
)

// Conversation is the append-only, ordered message log of one agent
// conversation. Only the owning state machine appends; the mutex exists so
// that HTTP handlers and other readers can snapshot safely while a turn is
// in flight.
type Conversation struct {
	mu       sync.RWMutex
	id       string
	messages []Message
	nextSeq  int
	turns    int
	status   Status
}

// NewConversation creates an empty live conversation.
func NewConversation(id string) *Conversation {
	return &Conversation{id: id, status: StatusRunning}
}

func (c *Conversation) ID() string { return c.id }

func (c *Conversation) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// SetStatus moves the conversation to next. Once a terminal status is
// reached, further transitions are rejected.
func (c *Conversation) SetStatus(next Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.Terminal() {
		return errors.New("conversation %s is already %s", c.id, c.status)
	}
	c.status = next
	return nil
}

// Append adds msg to the log, assigning the next sequence number, and
// returns the stored message. Appending to a terminal conversation fails.
func (c *Conversation) Append(msg Message) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status.Terminal() {
		return Message{}, errors.New("conversation %s is %s; log is sealed", c.id, c.status)
	}
	msg.Seq = c.nextSeq
	c.nextSeq++
	msg.ToolCalls = cloneCalls(msg.ToolCalls)
	c.messages = append(c.messages, msg)
	return msg, nil
}

// AdvanceCallStatus moves a tool call on the stored message at seq forward
// to next, enforcing the forward-only transition rule.
func (c *Conversation) AdvanceCallStatus(seq int, callID string, next CallStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.messages {
		if c.messages[i].Seq != seq {
			continue
		}
		for j := range c.messages[i].ToolCalls {
			tc := &c.messages[i].ToolCalls[j]
			if tc.ToolCallID != callID {
				continue
			}
			if !tc.Status.CanTransition(next) {
				return errors.New("tool call %s cannot move %s -> %s", callID, tc.Status, next)
			}
			tc.Status = next
			return nil
		}
	}
	return errors.New("no tool call %s on message %d", callID, seq)
}

// Messages returns a copy of the log.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	for i := range out {
		out[i].ToolCalls = cloneCalls(out[i].ToolCalls)
	}
	return out
}

func cloneCalls(calls []ToolCall) []ToolCall {
	if calls == nil {
		return nil
	}
	out := make([]ToolCall, len(calls))
	copy(out, calls)
	return out
}

// Len returns the number of messages in the log.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// BeginTurn increments the turn counter and returns its new value. One turn
// is one user message plus the round-trips needed to answer it.
func (c *Conversation) BeginTurn() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns++
	return c.turns
}

func (c *Conversation) Turns() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.turns
}

// Seed installs prior messages as context, reassigning sequence numbers from
// zero. It is only legal on an empty conversation; the headless surface uses
// it to restore a piped trace.
func (c *Conversation) Seed(msgs []Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) != 0 {
		return errors.New("conversation %s already has messages; cannot seed", c.id)
	}
	for _, m := range msgs {
		m.Seq = c.nextSeq
		c.nextSeq++
		m.ToolCalls = cloneCalls(m.ToolCalls)
		c.messages = append(c.messages, m)
	}
	return nil
}

// LastAssistantText returns the content of the most recent assistant message,
// or "" when there is none.
func (c *Conversation) LastAssistantText() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant && c.messages[i].Content != "" {
			return c.messages[i].Content
		}
	}
	return ""
}
