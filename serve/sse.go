package serve

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/liveeadmin/shai/errors"
)

// sseWriter streams JSON payloads as server-sent events over an echo context.
type sseWriter struct {
	c       echo.Context
	flusher http.Flusher
}

func newSSEWriter(c echo.Context) (*sseWriter, error) {
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming not supported by the underlying writer")
	}

	h := c.Response().Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{c: c, flusher: flusher}, nil
}

// Send marshals payload and writes one SSE data frame.
func (w *sseWriter) Send(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal SSE payload")
	}
	if _, err := fmt.Fprintf(w.c.Response().Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// Done writes the [DONE] marker that OpenAI-style streams end with.
func (w *sseWriter) Done() {
	fmt.Fprintf(w.c.Response().Writer, "data: [DONE]\n\n")
	w.flusher.Flush()
}
