package session

import (
	"encoding/json"

	"github.com/liveeadmin/shai/errors"
)

// Trace is the machine-readable serialization of a conversation, written by
// the headless surface so one invocation's output can seed the next
// invocation's context.
type Trace struct {
	Version  int       `json:"version"`
	Status   Status    `json:"status"`
	Messages []Message `json:"messages"`
}

const traceVersion = 1

// Snapshot captures the conversation as a Trace.
func (c *Conversation) Snapshot() Trace {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := make([]Message, len(c.messages))
	copy(msgs, c.messages)
	return Trace{Version: traceVersion, Status: c.status, Messages: msgs}
}

// Encode renders the trace as indented JSON.
func (t Trace) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	return data, errors.Wrapf(err, "failed to serialize trace")
}

// DecodeTrace parses data as a Trace. The second return is false when the
// payload is not a trace document at all, letting callers fall back to
// treating the input as plain text.
func DecodeTrace(data []byte) (Trace, bool) {
	var t Trace
	if err := json.Unmarshal(data, &t); err != nil {
		return Trace{}, false
	}
	if t.Version != traceVersion || t.Messages == nil {
		return Trace{}, false
	}
	return t, true
}
