// Package headless implements the pipe surface: stdin carries the user turn
// (or a trace from a previous invocation), stderr carries the live event
// stream, and stdout optionally carries a machine-readable trace of the full
// conversation for chaining into the next invocation.
package headless

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/liveeadmin/shai/agent"
	"github.com/liveeadmin/shai/errors"
	"github.com/liveeadmin/shai/events"
	"github.com/liveeadmin/shai/session"
)

// Options configures one headless run.
type Options struct {
	// Prompt is the user turn. When empty, stdin is the prompt; when stdin
	// holds a trace, Prompt is required.
	Prompt string
	// EmitTrace writes the conversation trace to Out on completion.
	EmitTrace bool

	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

// Run executes one turn through the agent. Stdin is either plain text (the
// turn itself) or a trace emitted by a previous run, in which case the trace
// seeds the conversation context and Options.Prompt supplies the new turn.
// Returns nil on a completed answer; a non-nil error means no answer was
// produced.
func Run(ctx context.Context, a *agent.Agent, opts Options) error {
	prompt, err := resolveInput(a, opts)
	if err != nil {
		return err
	}

	sub := a.Bus().Subscribe()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		renderProgress(opts.ErrOut, sub.C)
	}()

	turnErr := a.ProcessTurn(ctx, prompt)
	if turnErr == nil {
		a.Complete()
	}
	wg.Wait()

	if turnErr != nil {
		return turnErr
	}
	if a.Conversation().Status() == session.StatusCancelled {
		return errors.Newf(errors.KindCancellationRequested, "run cancelled before an answer was produced")
	}

	if opts.EmitTrace {
		trace := a.Conversation().Snapshot()
		data, err := trace.Encode()
		if err != nil {
			return err
		}
		if _, err := opts.Out.Write(append(data, '\n')); err != nil {
			return errors.Wrapf(err, "failed to write trace")
		}
	}
	return nil
}

// resolveInput reads stdin, seeds the conversation when it holds a trace,
// and returns the prompt for this run.
func resolveInput(a *agent.Agent, opts Options) (string, error) {
	var input []byte
	if opts.In != nil {
		data, err := io.ReadAll(opts.In)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read input")
		}
		input = data
	}

	if trace, ok := session.DecodeTrace(input); ok {
		if err := a.Conversation().Seed(trace.Messages); err != nil {
			return "", err
		}
		if opts.Prompt == "" {
			return "", errors.New("input is a trace; a prompt argument is required for the next turn")
		}
		return opts.Prompt, nil
	}

	if opts.Prompt != "" {
		return opts.Prompt, nil
	}
	prompt := strings.TrimSpace(string(input))
	if prompt == "" {
		return "", errors.New("no prompt given on stdin or the command line")
	}
	return prompt, nil
}

// renderProgress writes one line per event to the progress stream.
func renderProgress(w io.Writer, ch <-chan events.Event) {
	if w == nil {
		w = io.Discard
	}
	for evt := range ch {
		switch evt.Type {
		case events.TypeTextDelta:
			fmt.Fprintln(w, evt.Text)
		case events.TypeToolCallStarted:
			fmt.Fprintf(w, "[tool] %s started\n", evt.Call.Name)
		case events.TypeToolCallFinished:
			fmt.Fprintf(w, "[tool] %s %s\n", evt.Result.ToolCallID, evt.Result.Status)
		case events.TypeError:
			fmt.Fprintf(w, "[error] %s\n", evt.ErrMessage)
		case events.TypeConversationEnded:
			fmt.Fprintf(w, "[done] %s\n", evt.Status)
		}
	}
}
