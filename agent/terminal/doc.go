// Package terminal implements the interactive command-line surface.
//
// It feeds user lines into the agent as turns and renders the conversation's
// event stream (assistant text, tool activity, errors) back to the terminal.
// Tool output verbosity is configurable, and in prompt mode the user is asked
// before each tool call runs.
//
// The terminal is one of three surfaces over the same agent core:
//
//   - terminal: interactive CLI loop (this package)
//   - headless: pipe mode for scripting and chaining
//   - serve: HTTP server with OpenAI-compatible streaming endpoints
//
// Exit commands (/quit, /exit) end the session gracefully; the conversation
// is sealed so subscribers drain before Run returns.
package terminal
