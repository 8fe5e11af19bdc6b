package agent

import (
	"context"
	"sync"
	"time"

	"github.com/liveeadmin/shai/config"
	"github.com/liveeadmin/shai/errors"
	"github.com/liveeadmin/shai/events"
	"github.com/liveeadmin/shai/llm"
	"github.com/liveeadmin/shai/session"
	"github.com/liveeadmin/shai/tools"
)

type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

// Approver decides whether a tool call may run when the agent is in prompt
// mode. A nil Approver allows everything.
type Approver func(call session.ToolCall) bool

// Config is the immutable per-conversation configuration, resolved once when
// the agent is created. A different configuration requires a new agent.
type Config struct {
	SystemPrompt string
	// TurnBudget bounds the model/tool round-trips within one user turn.
	TurnBudget  int
	ToolTimeout time.Duration
	Retry       config.Retry
}

// Agent drives one conversation: it accepts user turns, talks to the model,
// dispatches requested tool calls, and loops until the model yields a final
// answer or the turn budget or a cancellation stops it. Progress is published
// on the conversation's event bus.
type Agent struct {
	cfg      Config
	client   llm.Client
	executor *tools.Executor
	conv     *session.Conversation
	bus      *events.Bus
	mode     Mode
	approve  Approver

	turnMu sync.Mutex // single-writer discipline over the conversation log

	mu           sync.Mutex
	cancelled    bool
	cancelReason string
	cancelTurn   context.CancelFunc
	failure      error

	endOnce sync.Once
}

// New wires an agent over an existing conversation and bus. activeTools may
// be empty, in which case the model has no tools to call.
func New(cfg Config, conv *session.Conversation, bus *events.Bus, client llm.Client, activeTools []tools.Tool, mode Mode, approve Approver) *Agent {
	if cfg.TurnBudget <= 0 {
		cfg.TurnBudget = config.DefaultTurnBudget
	}
	return &Agent{
		cfg:      cfg,
		client:   client,
		executor: tools.NewExecutor(activeTools, cfg.ToolTimeout),
		conv:     conv,
		bus:      bus,
		mode:     mode,
		approve:  approve,
	}
}

func (a *Agent) Conversation() *session.Conversation { return a.conv }
func (a *Agent) Bus() *events.Bus                    { return a.bus }

// ProcessTurn runs one user turn to completion: append the message, loop
// model -> tools -> model until a final text answer, then publish
// turn-completed. Fatal failures move the conversation to a terminal status
// and publish the terminal event before returning the error.
func (a *Agent) ProcessTurn(ctx context.Context, userInput string) error {
	a.turnMu.Lock()
	defer a.turnMu.Unlock()

	if a.conv.Status().Terminal() {
		return errors.New("conversation %s is %s; no further turns accepted", a.conv.ID(), a.conv.Status())
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	if a.cancelled {
		a.mu.Unlock()
		return a.finishCancelled()
	}
	a.cancelTurn = cancel
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		a.cancelTurn = nil
		a.mu.Unlock()
	}()

	if _, err := a.conv.Append(session.Message{Role: session.RoleUser, Content: userInput}); err != nil {
		return err
	}
	a.conv.BeginTurn()

	roundTrips := 0
	for {
		// Cancellation always wins, including over an exceeded budget.
		if a.interrupted(turnCtx) {
			return a.finishCancelled()
		}
		roundTrips++
		if roundTrips > a.cfg.TurnBudget {
			err := errors.Newf(errors.KindTurnBudgetExceeded,
				"turn budget of %d round-trips exceeded", a.cfg.TurnBudget)
			a.fail(err)
			return err
		}

		a.conv.SetStatus(session.StatusAwaitingModel)
		reply, err := llm.ChatWithRetry(turnCtx, a.client, a.messagesWithSystem(), a.executor.Tools(), a.cfg.Retry)
		if err != nil {
			if a.interrupted(turnCtx) {
				return a.finishCancelled()
			}
			a.fail(err)
			return err
		}

		if a.interrupted(turnCtx) {
			return a.finishCancelled()
		}

		if len(reply.ToolCalls) == 0 {
			// Final answer for this turn.
			if _, err := a.conv.Append(*reply); err != nil {
				return err
			}
			if reply.Content != "" {
				a.bus.Publish(events.Event{Type: events.TypeTextDelta, Text: reply.Content})
			}
			a.conv.SetStatus(session.StatusRunning)
			a.bus.Publish(events.Event{Type: events.TypeTurnCompleted, Status: session.StatusRunning})
			return nil
		}

		if err := a.runToolCalls(turnCtx, reply); err != nil {
			return err
		}
	}
}

// runToolCalls appends the assistant message, dispatches its tool calls
// concurrently, and appends the results as tool messages in the order the
// calls were issued.
func (a *Agent) runToolCalls(ctx context.Context, reply *session.Message) error {
	for i := range reply.ToolCalls {
		reply.ToolCalls[i].Status = session.CallPending
	}
	stored, err := a.conv.Append(*reply)
	if err != nil {
		return err
	}
	if reply.Content != "" {
		a.bus.Publish(events.Event{Type: events.TypeTextDelta, Text: reply.Content})
	}
	a.conv.SetStatus(session.StatusAwaitingTool)

	calls := stored.ToolCalls
	results := make([]session.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		call.Status = session.CallRunning
		if err := a.conv.AdvanceCallStatus(stored.Seq, call.ToolCallID, session.CallRunning); err != nil {
			return err
		}
		a.bus.Publish(events.Event{Type: events.TypeToolCallStarted, Call: &call})

		wg.Add(1)
		go func(i int, call session.ToolCall) {
			defer wg.Done()
			result := a.executeCall(ctx, call)
			results[i] = result
			a.bus.Publish(events.Event{Type: events.TypeToolCallFinished, Result: &result})
		}(i, call)
	}
	wg.Wait()

	cancelled := false
	for i, result := range results {
		if result.Status == session.CallCancelled {
			cancelled = true
		}
		call := calls[i]
		call.Status = result.Status
		if err := a.conv.AdvanceCallStatus(stored.Seq, call.ToolCallID, result.Status); err != nil {
			return err
		}
		if _, err := a.conv.Append(session.Message{
			Role:      session.RoleTool,
			Content:   result.Text(),
			ToolCalls: []session.ToolCall{call},
		}); err != nil {
			return err
		}
	}

	if cancelled || a.interrupted(ctx) {
		return a.finishCancelled()
	}
	return nil
}

// executeCall runs one call through the executor, honoring prompt-mode
// approval. The returned result always carries a terminal status.
func (a *Agent) executeCall(ctx context.Context, call session.ToolCall) session.ToolResult {
	if a.mode == ModePrompt && a.approve != nil && !a.approve(call) {
		return session.ToolResult{
			ToolCallID: call.ToolCallID,
			Status:     session.CallFailed,
			Error:      "tool call rejected by user",
		}
	}
	return a.executor.Execute(ctx, call)
}

// messagesWithSystem returns the conversation log with the system prompt
// prepended when one is configured and the log does not already start with
// one.
func (a *Agent) messagesWithSystem() []session.Message {
	msgs := a.conv.Messages()
	if a.cfg.SystemPrompt == "" {
		return msgs
	}
	if len(msgs) > 0 && msgs[0].Role == session.RoleSystem {
		return msgs
	}
	out := make([]session.Message, 0, len(msgs)+1)
	out = append(out, session.Message{Role: session.RoleSystem, Content: a.cfg.SystemPrompt})
	return append(out, msgs...)
}

// interrupted reports whether a cooperative stop has been requested.
func (a *Agent) interrupted(ctx context.Context) bool {
	a.mu.Lock()
	cancelled := a.cancelled
	a.mu.Unlock()
	return cancelled || ctx.Err() != nil
}

// Cancel requests a cooperative stop. In-flight model calls and tool calls
// are aborted, the conversation moves to cancelled, and the terminal event is
// published with the given reason. Cancelling an already-terminal
// conversation is a no-op.
func (a *Agent) Cancel(reason string) {
	a.mu.Lock()
	if a.cancelled {
		a.mu.Unlock()
		return
	}
	a.cancelled = true
	a.cancelReason = reason
	cancelTurn := a.cancelTurn
	inTurn := cancelTurn != nil
	a.mu.Unlock()

	a.executor.CancelAll()
	if inTurn {
		// The running turn observes the cancellation and publishes the
		// terminal event itself.
		cancelTurn()
		return
	}
	a.finishCancelled()
}

// finishCancelled moves the conversation to cancelled and publishes the
// terminal event exactly once. Returns nil: cancellation is a normal terminal
// state, not a failure.
func (a *Agent) finishCancelled() error {
	a.mu.Lock()
	reason := a.cancelReason
	a.cancelled = true
	a.mu.Unlock()
	if reason == "" {
		reason = "cancellation requested"
	}
	a.end(session.StatusCancelled, reason, nil)
	return nil
}

// fail moves the conversation to failed, publishing the error event followed
// by the terminal event.
func (a *Agent) fail(err error) {
	a.end(session.StatusFailed, err.Error(), err)
}

// end performs the single terminal transition: status change, optional error
// event, then conversation-ended. Later calls are no-ops, so a cancellation
// racing a failure produces exactly one terminal event.
func (a *Agent) end(status session.Status, reason string, cause error) {
	a.endOnce.Do(func() {
		a.conv.SetStatus(status)
		if cause != nil {
			a.mu.Lock()
			a.failure = cause
			a.mu.Unlock()
			kind, _ := errors.KindOf(cause)
			a.bus.Publish(events.Event{
				Type:       events.TypeError,
				ErrKind:    kind,
				ErrMessage: cause.Error(),
			})
		}
		a.bus.Publish(events.Event{Type: events.TypeConversationEnded, Status: status, Reason: reason})
	})
}

// Failure returns the error that moved the conversation to failed, or nil.
func (a *Agent) Failure() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failure
}

// Complete seals a conversation that finished normally, publishing the
// terminal event. Surfaces call it when they are done submitting turns.
func (a *Agent) Complete() {
	a.end(session.StatusCompleted, "", nil)
}
