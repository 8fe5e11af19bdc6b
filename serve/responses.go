package serve

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/liveeadmin/shai/agent"
	"github.com/liveeadmin/shai/errors"
	"github.com/liveeadmin/shai/events"
	"github.com/liveeadmin/shai/session"
)

// ResponseRequest is the Responses API request body. Setting store creates a
// persistent session addressable by the returned id; previous_response_id
// continues an existing one.
type ResponseRequest struct {
	Model              string `json:"model"`
	Input              string `json:"input"`
	Stream             bool   `json:"stream"`
	Store              bool   `json:"store"`
	PreviousResponseID string `json:"previous_response_id"`
}

type ResponseObject struct {
	ID        string           `json:"id"`
	Object    string           `json:"object"`
	CreatedAt int64            `json:"created_at"`
	Status    string           `json:"status"`
	Model     string           `json:"model"`
	Output    []ResponseOutput `json:"output"`
	// Error carries the failure detail when Status is failed.
	Error *APIError `json:"error,omitempty"`
}

type ResponseOutput struct {
	Type    string            `json:"type"`
	Role    string            `json:"role"`
	Content []ResponseContent `json:"content"`
}

type ResponseContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseStreamEvent struct {
	Type string `json:"type"`
	// Seq lets a reconnecting client resume the stored-session stream with
	// the starting_after query parameter.
	Seq      uint64          `json:"seq,omitempty"`
	Delta    string          `json:"delta,omitempty"`
	Response *ResponseObject `json:"response,omitempty"`
	Error    *APIError       `json:"error,omitempty"`
}

// CreateResponse runs one turn against a new or existing session.
// POST /v1/responses
func (s *Server) CreateResponse(c echo.Context) error {
	var req ResponseRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(invalidRequest("invalid request body"))
	}
	if req.Input == "" {
		return c.JSON(invalidRequest("input is required"))
	}

	var (
		sess      *agent.Session
		ephemeral bool
		err       error
	)
	switch {
	case req.PreviousResponseID != "":
		sess, err = s.manager.Get(req.PreviousResponseID)
		if err != nil {
			return writeError(c, err)
		}
	case req.Store:
		sess, err = s.manager.Create("resp_" + uuid.NewString())
		if err != nil {
			return writeError(c, err)
		}
	default:
		sess = s.manager.CreateEphemeral()
		ephemeral = true
		defer sess.Agent().Cancel("request finished")
	}

	model := req.Model
	if model == "" {
		model = s.cfg.Model
	}

	if req.Stream {
		return s.streamResponse(c, sess, model, req.Input, ephemeral)
	}

	if err := sess.ProcessTurn(c.Request().Context(), req.Input); err != nil {
		if ephemeral {
			return writeError(c, err)
		}
		// The stored response stays addressable; report its state.
		return c.JSON(http.StatusOK, responseObject(sess, model))
	}
	if ephemeral {
		sess.Agent().Complete()
	}
	return c.JSON(http.StatusOK, responseObject(sess, model))
}

// GetResponse reports the current state of a stored response.
// GET /v1/responses/:id
func (s *Server) GetResponse(c echo.Context) error {
	sess, err := s.manager.Get(c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, responseObject(sess, s.cfg.Model))
}

// CancelResponse stops a stored response's in-flight work. Cancelling a
// response that is already settled is a no-op that reports its state.
// POST /v1/responses/:id/cancel
func (s *Server) CancelResponse(c echo.Context) error {
	id := c.Param("id")
	sess, err := s.manager.Get(id)
	if err != nil {
		return writeError(c, err)
	}
	sess.Agent().Cancel("cancelled via api")
	return c.JSON(http.StatusOK, responseObject(sess, s.cfg.Model))
}

func (s *Server) streamResponse(c echo.Context, sess *agent.Session, model, input string, ephemeral bool) error {
	sub, err := subscribeStream(c, sess)
	if err != nil {
		return c.JSON(invalidRequest(err.Error()))
	}
	defer sub.Cancel()

	w, err := newSSEWriter(c)
	if err != nil {
		return c.JSON(internalError(err.Error()))
	}

	go func() {
		if err := sess.ProcessTurn(c.Request().Context(), input); err == nil && ephemeral {
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
			switch evt.Type {
			case events.TypeTextDelta:
				if err := w.Send(responseStreamEvent{Type: "response.output_text.delta", Seq: evt.Seq, Delta: evt.Text}); err != nil {
					sess.Agent().Cancel("client disconnected")
					return nil
				}
			case events.TypeError:
				if err := w.Send(responseStreamEvent{Type: "response.error", Seq: evt.Seq, Error: apiError(evt.ErrKind, evt.ErrMessage)}); err != nil {
					sess.Agent().Cancel("client disconnected")
					return nil
				}
			case events.TypeTurnCompleted:
				if !ephemeral {
					// Stored sessions stay open between turns; the
					// stream covers exactly one turn.
					obj := responseObject(sess, model)
					obj.Status = "completed"
					w.Send(responseStreamEvent{Type: "response.completed", Seq: evt.Seq, Response: &obj})
					w.Done()
					return nil
				}
			case events.TypeConversationEnded:
				obj := responseObject(sess, model)
				w.Send(responseStreamEvent{Type: "response." + obj.Status, Seq: evt.Seq, Response: &obj})
				w.Done()
				return nil
			}
		}
	}
}

// subscribeStream attaches to the session's bus. A starting_after query
// parameter resumes after a previously observed sequence number, replaying
// the retained events past it.
func subscribeStream(c echo.Context, sess *agent.Session) (*events.Subscription, error) {
	raw := c.QueryParam("starting_after")
	if raw == "" {
		return sess.Bus().Subscribe(), nil
	}
	after, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, errors.New("starting_after must be a sequence number")
	}
	return sess.Bus().SubscribeAfter(after)
}

// responseObject snapshots a session as a Responses API object.
func responseObject(sess *agent.Session, model string) ResponseObject {
	conv := sess.Conversation()
	obj := ResponseObject{
		ID:        sess.ID,
		Object:    "response",
		CreatedAt: sess.CreatedAt.Unix(),
		Status:    responseStatus(conv.Status()),
		Model:     model,
	}
	if failure := sess.Agent().Failure(); failure != nil {
		obj.Error = apiErrorFrom(failure)
	}
	if text := conv.LastAssistantText(); text != "" {
		obj.Output = []ResponseOutput{{
			Type:    "message",
			Role:    "assistant",
			Content: []ResponseContent{{Type: "output_text", Text: text}},
		}}
	}
	return obj
}

func responseStatus(st session.Status) string {
	switch st {
	case session.StatusCompleted, session.StatusRunning:
		// A stored session idles as running between turns; outwardly the
		// last response is complete.
		return "completed"
	case session.StatusCancelled:
		return "cancelled"
	case session.StatusFailed:
		return "failed"
	default:
		return "in_progress"
	}
}
