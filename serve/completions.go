package serve

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/liveeadmin/shai/agent"
	"github.com/liveeadmin/shai/events"
	"github.com/liveeadmin/shai/session"
)

// ChatCompletionRequest is the OpenAI Chat Completions request surface we
// accept. The full conversation history arrives on every call; the last user
// message is the new turn and everything before it seeds the context.
type ChatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	Delta        *ChatMessage `json:"delta,omitempty"`
	FinishReason string       `json:"finish_reason,omitempty"`
}

// StreamChunk is one SSE frame of a streamed completion.
type StreamChunk struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	// Error carries the failure detail on an error chunk.
	Error *APIError `json:"error,omitempty"`
}

// ChatCompletions serves the OpenAI-compatible completion endpoint. Every
// call gets a fresh ephemeral session, torn down when the response ends.
// POST /v1/chat/completions
func (s *Server) ChatCompletions(c echo.Context) error {
	var req ChatCompletionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(invalidRequest("invalid request body"))
	}
	if len(req.Messages) == 0 {
		return c.JSON(invalidRequest("messages is required"))
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role != "user" {
		return c.JSON(invalidRequest("last message must have role 'user'"))
	}

	sess := s.manager.CreateEphemeral()
	defer sess.Agent().Cancel("request finished")

	if len(req.Messages) > 1 {
		if err := seedHistory(sess, req.Messages[:len(req.Messages)-1]); err != nil {
			return writeError(c, err)
		}
	}

	model := req.Model
	if model == "" {
		model = s.cfg.Model
	}

	if req.Stream {
		return s.streamCompletion(c, sess, model, last.Content)
	}

	if err := sess.ProcessTurn(c.Request().Context(), last.Content); err != nil {
		return writeError(c, err)
	}
	answer := sess.Conversation().LastAssistantText()
	sess.Agent().Complete()

	return c.JSON(http.StatusOK, ChatCompletionResponse{
		ID:      sess.ID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   model,
		Choices: []Choice{{
			Index:        0,
			Message:      &ChatMessage{Role: "assistant", Content: answer},
			FinishReason: "stop",
		}},
	})
}

// streamCompletion forwards the conversation's event stream as completion
// delta chunks until the terminal event.
func (s *Server) streamCompletion(c echo.Context, sess *agent.Session, model, turn string) error {
	w, err := newSSEWriter(c)
	if err != nil {
		return c.JSON(internalError(err.Error()))
	}

	sub := sess.Bus().Subscribe()
	defer sub.Cancel()

	go func() {
		if err := sess.ProcessTurn(c.Request().Context(), turn); err == nil {
			sess.Agent().Complete()
		}
	}()

	created := time.Now().Unix()
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
			chunk, terminal := completionChunk(evt, sess.ID, model, created)
			if chunk != nil {
				if err := w.Send(chunk); err != nil {
					sess.Agent().Cancel("client disconnected")
					return nil
				}
			}
			if terminal {
				w.Done()
				return nil
			}
		}
	}
}

// completionChunk translates one bus event into a completion chunk. The
// second return marks stream end.
func completionChunk(evt events.Event, id, model string, created int64) (*StreamChunk, bool) {
	base := StreamChunk{
		ID:      id,
		Object:  "chat.completion.chunk",
		Created: created,
		Model:   model,
	}
	switch evt.Type {
	case events.TypeTextDelta:
		base.Choices = []Choice{{Index: 0, Delta: &ChatMessage{Role: "assistant", Content: evt.Text}}}
		return &base, false
	case events.TypeError:
		base.Choices = []Choice{{Index: 0, FinishReason: "error"}}
		base.Error = apiError(evt.ErrKind, evt.ErrMessage)
		return &base, false
	case events.TypeConversationEnded:
		reason := "stop"
		if evt.Status != session.StatusCompleted {
			reason = string(evt.Status)
		}
		base.Choices = []Choice{{Index: 0, Delta: &ChatMessage{}, FinishReason: reason}}
		return &base, true
	}
	return nil, false
}

// seedHistory installs the request's prior messages as conversation context.
func seedHistory(sess *agent.Session, history []ChatMessage) error {
	msgs := make([]session.Message, 0, len(history))
	for _, m := range history {
		role := session.Role(m.Role)
		switch role {
		case session.RoleUser, session.RoleAssistant, session.RoleSystem, session.RoleTool:
		default:
			role = session.RoleUser
		}
		msgs = append(msgs, session.Message{Role: role, Content: m.Content})
	}
	return sess.Conversation().Seed(msgs)
}
