package serve

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/liveeadmin/shai/agent"
	"github.com/liveeadmin/shai/events"
	"github.com/liveeadmin/shai/session"
)

// MultimodalRequest is the native turn endpoint's body. Each entry in
// messages carries exactly one of its fields: a user message, a prior
// assistant reply, or a prior tool call with its result.
type MultimodalRequest struct {
	Model    string              `json:"model"`
	Stream   bool                `json:"stream"`
	Messages []MultimodalMessage `json:"messages"`
}

type MultimodalMessage struct {
	Message   string            `json:"message,omitempty"`
	Assistant string            `json:"assistant,omitempty"`
	Call      *MultimodalCall   `json:"call,omitempty"`
	Result    *MultimodalResult `json:"result,omitempty"`
}

type MultimodalCall struct {
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

type MultimodalResult struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// MultimodalChunk is one streamed frame: assistant text, a tool call being
// issued, or a tool result coming back.
type MultimodalChunk struct {
	ID        string            `json:"id"`
	Model     string            `json:"model"`
	Assistant string            `json:"assistant,omitempty"`
	Call      *MultimodalCall   `json:"call,omitempty"`
	Result    *MultimodalResult `json:"result,omitempty"`
}

type MultimodalResponse struct {
	ID     string            `json:"id"`
	Model  string            `json:"model"`
	Result []MultimodalChunk `json:"result"`
}

// Multimodal runs one agent turn, exposing tool activity on the wire.
// Without a session_id each call is ephemeral; with one, turns accumulate
// on a persistent session and the message history in the body only seeds
// the first call.
// POST /v1/multimodal, POST /v1/multimodal/:session_id
func (s *Server) Multimodal(c echo.Context) error {
	var req MultimodalRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(invalidRequest("invalid request body"))
	}
	if len(req.Messages) == 0 {
		return c.JSON(invalidRequest("messages is required"))
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Message == "" {
		return c.JSON(invalidRequest("last message must be a user message"))
	}

	var (
		sess      *agent.Session
		ephemeral bool
		err       error
	)
	if id := c.Param("session_id"); id != "" {
		sess, err = s.manager.GetOrCreate(id)
		if err != nil {
			return writeError(c, err)
		}
	} else {
		sess = s.manager.CreateEphemeral()
		ephemeral = true
		defer sess.Agent().Cancel("request finished")
	}

	conv := sess.Conversation()
	if conv.Len() == 0 && len(req.Messages) > 1 {
		if err := conv.Seed(multimodalHistory(req.Messages[:len(req.Messages)-1])); err != nil {
			return writeError(c, err)
		}
	}

	model := req.Model
	if model == "" {
		model = s.cfg.Model
	}

	if req.Stream {
		return s.streamMultimodal(c, sess, model, last.Message, ephemeral)
	}

	before := conv.Len()
	if err := sess.ProcessTurn(c.Request().Context(), last.Message); err != nil {
		return writeError(c, err)
	}
	if ephemeral {
		sess.Agent().Complete()
	}
	return c.JSON(http.StatusOK, MultimodalResponse{
		ID:     sess.ID,
		Model:  model,
		Result: multimodalTranscript(conv.Messages()[before:], sess.ID, model),
	})
}

func (s *Server) streamMultimodal(c echo.Context, sess *agent.Session, model, turn string, ephemeral bool) error {
	w, err := newSSEWriter(c)
	if err != nil {
		return c.JSON(internalError(err.Error()))
	}

	sub := sess.Bus().Subscribe()
	defer sub.Cancel()

	go func() {
		if err := sess.ProcessTurn(c.Request().Context(), turn); err == nil && ephemeral {
			sess.Agent().Complete()
		}
	}()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			sess.Agent().Cancel("client disconnected")
			return nil
		case evt, ok := <-sub.C:
			if !ok {
				w.Done()
				return nil
			}
			if chunk := multimodalChunk(evt, sess.ID, model); chunk != nil {
				if err := w.Send(chunk); err != nil {
					sess.Agent().Cancel("client disconnected")
					return nil
				}
			}
			if evt.Type == events.TypeTurnCompleted && !ephemeral {
				w.Done()
				return nil
			}
			if evt.Terminal() {
				w.Done()
				return nil
			}
		}
	}
}

func multimodalChunk(evt events.Event, id, model string) *MultimodalChunk {
	chunk := MultimodalChunk{ID: id, Model: model}
	switch evt.Type {
	case events.TypeTextDelta:
		chunk.Assistant = evt.Text
	case events.TypeToolCallStarted:
		chunk.Call = &MultimodalCall{Tool: evt.Call.Name, Args: evt.Call.Args}
	case events.TypeToolCallFinished:
		chunk.Result = resultChunk(evt.Result)
	case events.TypeError:
		chunk.Result = &MultimodalResult{Error: evt.ErrMessage}
	default:
		return nil
	}
	return &chunk
}

func resultChunk(res *session.ToolResult) *MultimodalResult {
	if res.Status == session.CallSucceeded {
		return &MultimodalResult{Text: res.Output}
	}
	msg := res.Error
	if msg == "" {
		msg = string(res.Status)
	}
	return &MultimodalResult{Error: msg}
}

// multimodalTranscript renders the messages a turn appended as chunks, in
// conversation order.
func multimodalTranscript(msgs []session.Message, id, model string) []MultimodalChunk {
	var out []MultimodalChunk
	for _, m := range msgs {
		switch m.Role {
		case session.RoleAssistant:
			if m.Content != "" {
				out = append(out, MultimodalChunk{ID: id, Model: model, Assistant: m.Content})
			}
			for _, tc := range m.ToolCalls {
				out = append(out, MultimodalChunk{ID: id, Model: model, Call: &MultimodalCall{Tool: tc.Name, Args: tc.Args}})
			}
		case session.RoleTool:
			res := MultimodalResult{Text: m.Content}
			if tc := m.ToolCalls; len(tc) > 0 && tc[0].Status != session.CallSucceeded {
				res = MultimodalResult{Error: m.Content}
			}
			out = append(out, MultimodalChunk{ID: id, Model: model, Result: &res})
		}
	}
	return out
}

func multimodalHistory(history []MultimodalMessage) []session.Message {
	msgs := make([]session.Message, 0, len(history))
	for _, m := range history {
		switch {
		case m.Message != "":
			msgs = append(msgs, session.Message{Role: session.RoleUser, Content: m.Message})
		case m.Assistant != "":
			msgs = append(msgs, session.Message{Role: session.RoleAssistant, Content: m.Assistant})
		case m.Call != nil:
			call := session.ToolCall{Name: m.Call.Tool, Args: m.Call.Args, Status: session.CallSucceeded}
			msgs = append(msgs, session.Message{Role: session.RoleAssistant, ToolCalls: []session.ToolCall{call}})
			if m.Result != nil {
				content := m.Result.Text
				status := session.CallSucceeded
				if m.Result.Error != "" {
					content = m.Result.Error
					status = session.CallFailed
				}
				msgs = append(msgs, session.Message{
					Role:      session.RoleTool,
					Content:   content,
					ToolCalls: []session.ToolCall{{Name: m.Call.Tool, Status: status}},
				})
			}
		}
	}
	return msgs
}
