// Package hook turns shell activity into agent suggestions. A shell
// integration reports the command that just ran; the failing ones get a
// synthetic turn on a throwaway session and the model's advice comes back as
// plain text for the prompt line.
package hook

import (
	"context"
	"fmt"
	"strings"

	"github.com/liveeadmin/shai/agent"
	"github.com/liveeadmin/shai/errors"
)

// Trigger is what the shell integration delivers after a command finishes.
type Trigger struct {
	// Command is the command line as the user typed it.
	Command string
	// ExitCode is the command's exit status.
	ExitCode int
	// Output is the recent terminal output, most recent lines last.
	Output string
}

// maxOutputBytes caps how much terminal scrollback goes into the turn.
const maxOutputBytes = 8 * 1024

// Suggest runs the trigger as a single turn on a dedicated ephemeral session
// and returns the suggestion text. The session never outlives the call.
func Suggest(ctx context.Context, mgr *agent.Manager, trig Trigger) (string, error) {
	if strings.TrimSpace(trig.Command) == "" {
		return "", errors.New("hook trigger has no command")
	}

	sess := mgr.CreateEphemeral()
	defer sess.Agent().Cancel("hook finished")

	if err := sess.ProcessTurn(ctx, trig.Prompt()); err != nil {
		return "", errors.Wrapf(err, "hook suggestion failed")
	}
	suggestion := sess.Conversation().LastAssistantText()
	sess.Agent().Complete()
	return suggestion, nil
}

// Prompt renders the trigger as the synthetic user turn.
func (t Trigger) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "The command `%s` exited with code %d.", t.Command, t.ExitCode)
	out := strings.TrimSpace(t.Output)
	if len(out) > maxOutputBytes {
		out = out[len(out)-maxOutputBytes:]
	}
	if out != "" {
		fmt.Fprintf(&b, "\nRecent terminal output:\n%s", out)
	}
	b.WriteString("\nSuggest a fix or the next command to run.")
	return b.String()
}
