// Package agent contains the conversation state machine and the session
// manager that owns live conversations.
//
// # Architecture
//
// The Agent type drives exactly one conversation. A user turn moves it from
// idle to awaiting-model; the provider's reply either finishes the turn with
// a text answer or requests tool calls, which are dispatched concurrently and
// fed back to the model. A configurable budget bounds the round-trips per
// turn, and a cooperative cancellation flag is observed before each provider
// call and inside every tool execution. Progress is published on a
// per-conversation event bus (see the events package) that every surface
// subscribes to.
//
// The Manager type owns the table of persistent sessions: creation, lookup,
// deletion, listing, idle eviction, and drain-on-shutdown. Ephemeral sessions
// never enter the table, so their ids cannot be resolved by later requests.
//
// # Surfaces
//
// Three subpackage surfaces drive agents:
//
//   - agent/terminal: interactive CLI loop
//   - agent/headless: pipe mode, stdin in, trace out
//   - serve (top level): HTTP server with OpenAI-compatible endpoints
//
// # Modes
//
// The agent supports two operation modes:
//
//   - ModeAuto: tool calls run without confirmation
//   - ModePrompt: each tool call is routed through an Approver first
package agent
