package tools

import (
	"context"
	"sync"
	"time"

	"github.com/liveeadmin/shai/errors"
	"github.com/liveeadmin/shai/session"
)

// Executor runs the tool calls of one conversation. It enforces a per-call
// timeout, supports cancelling individual in-flight calls, and always returns
// exactly one ToolResult per call: failures, timeouts, and cancellations are
// captured in the result instead of propagating.
type Executor struct {
	timeout time.Duration

	mu       sync.Mutex
	byName   map[string]Tool
	inflight map[string]context.CancelFunc
}

// NewExecutor creates an Executor over the given active tools. A timeout of
// zero disables the per-call deadline.
func NewExecutor(active []Tool, timeout time.Duration) *Executor {
	byName := make(map[string]Tool, len(active))
	for _, t := range active {
		byName[t.Name()] = t
	}
	return &Executor{
		timeout:  timeout,
		byName:   byName,
		inflight: make(map[string]context.CancelFunc),
	}
}

// Tools returns the active tools in no particular order.
func (e *Executor) Tools() []Tool {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Tool, 0, len(e.byName))
	for _, t := range e.byName {
		out = append(out, t)
	}
	return out
}

// Execute runs a single tool call to completion and returns its result.
// The call's status in the result is always terminal.
func (e *Executor) Execute(ctx context.Context, call session.ToolCall) session.ToolResult {
	start := time.Now()

	e.mu.Lock()
	tool, ok := e.byName[call.Name]
	if !ok {
		e.mu.Unlock()
		return session.ToolResult{
			ToolCallID: call.ToolCallID,
			Status:     session.CallFailed,
			Error:      errors.New("unknown tool '%s'", call.Name).Error(),
			Duration:   time.Since(start),
		}
	}

	callCtx := ctx
	var cancelTimeout context.CancelFunc = func() {}
	if e.timeout > 0 {
		callCtx, cancelTimeout = context.WithTimeout(ctx, e.timeout)
	}
	callCtx, cancelCall := context.WithCancel(callCtx)
	e.inflight[call.ToolCallID] = cancelCall
	e.mu.Unlock()

	defer func() {
		cancelCall()
		cancelTimeout()
		e.mu.Lock()
		delete(e.inflight, call.ToolCallID)
		e.mu.Unlock()
	}()

	output, err := tool.Execute(callCtx, call.Args)
	duration := time.Since(start)

	if err == nil && callCtx.Err() == nil {
		return session.ToolResult{
			ToolCallID: call.ToolCallID,
			Status:     session.CallSucceeded,
			Output:     output,
			Duration:   duration,
		}
	}

	// The deadline on callCtx is ours; the parent deadline or cancellation
	// belongs to the conversation.
	if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
		return session.ToolResult{
			ToolCallID: call.ToolCallID,
			Status:     session.CallFailed,
			Error:      errors.WithKind(errors.KindToolTimeout, errors.New("tool '%s' timed out after %s", call.Name, e.timeout)).Error(),
			Duration:   duration,
		}
	}

	if callCtx.Err() == context.Canceled {
		return session.ToolResult{
			ToolCallID: call.ToolCallID,
			Status:     session.CallCancelled,
			Error:      "tool call cancelled",
			Duration:   duration,
		}
	}

	msg := "tool call failed"
	if err != nil {
		msg = err.Error()
	} else if callCtx.Err() != nil {
		msg = callCtx.Err().Error()
	}
	return session.ToolResult{
		ToolCallID: call.ToolCallID,
		Status:     session.CallFailed,
		Error:      msg,
		Duration:   duration,
	}
}

// Cancel asks a single in-flight call to stop. Unknown or already-finished
// ids are ignored.
func (e *Executor) Cancel(id string) {
	e.mu.Lock()
	cancel, ok := e.inflight[id]
	e.mu.Unlock()
	if ok {
		cancel()
	}
}

// CancelAll asks every in-flight call to stop.
func (e *Executor) CancelAll() {
	e.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(e.inflight))
	for _, cancel := range e.inflight {
		cancels = append(cancels, cancel)
	}
	e.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}
