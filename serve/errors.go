package serve

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/liveeadmin/shai/errors"
)

// ErrorResponse is the OpenAI-style error envelope every endpoint uses.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// APIError carries the message, machine type, and optional code.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

func invalidRequest(message string) (int, ErrorResponse) {
	return http.StatusBadRequest, ErrorResponse{Error: &APIError{Message: message, Type: "invalid_request"}}
}

func internalError(message string) (int, ErrorResponse) {
	return http.StatusInternalServerError, ErrorResponse{Error: &APIError{Message: message, Type: "internal_error"}}
}

// errorType names the wire error class for a failure kind.
func errorType(kind errors.Kind) string {
	switch kind {
	case errors.KindSessionNotFound:
		return "not_found"
	case errors.KindProviderUnavailable, errors.KindProviderRateLimited:
		return "upstream_error"
	}
	return "internal_error"
}

// apiError renders a failure kind and message in the wire error shape.
func apiError(kind errors.Kind, message string) *APIError {
	return &APIError{Message: message, Type: errorType(kind), Code: string(kind)}
}

// apiErrorFrom renders an internal error in the wire error shape.
func apiErrorFrom(err error) *APIError {
	kind, _ := errors.KindOf(err)
	return apiError(kind, err.Error())
}

// writeError translates an internal error into the wire error shape, mapping
// the error taxonomy onto HTTP status codes.
func writeError(c echo.Context, err error) error {
	kind, _ := errors.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case errors.KindSessionNotFound:
		status = http.StatusNotFound
	case errors.KindProviderUnavailable, errors.KindProviderRateLimited:
		status = http.StatusBadGateway
	}
	return c.JSON(status, ErrorResponse{Error: apiErrorFrom(err)})
}
