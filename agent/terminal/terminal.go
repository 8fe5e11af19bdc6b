package terminal

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/liveeadmin/shai/agent"
	"github.com/liveeadmin/shai/events"
	"github.com/liveeadmin/shai/session"
)

// Verbosity controls how much tool activity is printed.
type Verbosity string

const (
	VerbosityNone Verbosity = "none"
	VerbosityInfo Verbosity = "info"
	VerbosityAll  Verbosity = "all"
)

// Terminal is the interactive surface. It renders the conversation's event
// stream and feeds user lines into the agent as turns.
type Terminal struct {
	agent     *agent.Agent
	in        io.Reader
	out       io.Writer
	verbosity Verbosity
}

// New creates a terminal over the given agent, reading from in and writing
// to out.
func New(a *agent.Agent, in io.Reader, out io.Writer, verbosity Verbosity) *Terminal {
	return &Terminal{agent: a, in: in, out: out, verbosity: verbosity}
}

// Run starts the interactive loop. It returns when the user quits, input is
// exhausted, or the conversation reaches a terminal state.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	sub := t.agent.Bus().Subscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.render(sub.C)
	}()

	err := t.loop(ctx, initialPrompt)

	// Seal the conversation so the renderer drains and stops.
	if err == nil {
		t.agent.Complete()
	}
	wg.Wait()
	return err
}

func (t *Terminal) loop(ctx context.Context, initialPrompt string) error {
	if initialPrompt != "" {
		if err := t.processTurn(ctx, initialPrompt); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(t.in)
	for {
		fmt.Fprint(t.out, "You: ")
		if !scanner.Scan() {
			// EOF or read error ends the session
			break
		}

		userInput := strings.TrimSpace(scanner.Text())
		if userInput == "" {
			continue
		}

		// Exit commands
		if userInput == "/quit" || userInput == "/exit" {
			break
		}

		if err := t.processTurn(ctx, userInput); err != nil {
			fmt.Fprintf(t.out, "Error: %v\n", err)
			if t.agent.Conversation().Status().Terminal() {
				return err
			}
		}
	}
	return scanner.Err()
}

func (t *Terminal) processTurn(ctx context.Context, userInput string) error {
	return t.agent.ProcessTurn(ctx, userInput)
}

// render prints the event stream until the channel closes.
func (t *Terminal) render(ch <-chan events.Event) {
	for evt := range ch {
		switch evt.Type {
		case events.TypeTextDelta:
			fmt.Fprintf(t.out, "shai: %s\n", evt.Text)
		case events.TypeToolCallStarted:
			if t.verbosity == VerbosityAll {
				fmt.Fprintf(t.out, "shai is calling tool `%s` with args: %v\n", evt.Call.Name, evt.Call.Args)
			} else if t.verbosity == VerbosityInfo {
				fmt.Fprintf(t.out, "shai is calling tool `%s`\n", evt.Call.Name)
			}
		case events.TypeToolCallFinished:
			if t.verbosity == VerbosityAll {
				fmt.Fprintf(t.out, "Tool output: %s\n", evt.Result.Text())
			}
		case events.TypeError:
			fmt.Fprintf(t.out, "Error: %s\n", evt.ErrMessage)
		case events.TypeConversationEnded:
			if evt.Status == session.StatusCancelled && evt.Reason != "" {
				fmt.Fprintf(t.out, "Cancelled: %s\n", evt.Reason)
			}
		}
	}
}

// PromptApprover asks for confirmation on the terminal before each tool call.
// It fits the agent's prompt mode.
func PromptApprover(in io.Reader, out io.Writer) agent.Approver {
	reader := bufio.NewReader(in)
	return func(call session.ToolCall) bool {
		fmt.Fprintf(out, "shai wants to call tool `%s`. Allow? (y/n): ", call.Name)
		answer, _ := reader.ReadString('\n')
		return strings.TrimSpace(strings.ToLower(answer)) == "y"
	}
}
