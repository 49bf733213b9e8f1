package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

const (
	errTypeAuthentication = "authentication_error"
	errTypeInvalidRequest = "invalid_request_error"
	errTypeNotFound       = "not_found_error"
	errTypeInternal       = "internal_error"
)

// apiError is an error with an HTTP status and a client-facing type.
type apiError struct {
	Status  int
	Type    string
	Message string
	Err     error
}

func newError(status int, typ, message string) *apiError {
	return &apiError{Status: status, Type: typ, Message: message}
}

func invalidRequest(message string, err error) *apiError {
	return &apiError{Status: http.StatusBadRequest, Type: errTypeInvalidRequest, Message: message, Err: err}
}

func notFound(message string) *apiError {
	return newError(http.StatusNotFound, errTypeNotFound, message)
}

func (e *apiError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *apiError) Unwrap() error { return e.Err }

// ToJSON renders the error envelope returned to clients.
func (e *apiError) ToJSON() map[string]any {
	return map[string]any{
		"error": map[string]any{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// writeError converts errors to the JSON error envelope.
func writeError(c echo.Context, err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return c.JSON(apiErr.Status, apiErr.ToJSON())
	}

	// Fallback for unexpected errors
	return c.JSON(http.StatusInternalServerError, newError(http.StatusInternalServerError, errTypeInternal,
		"an unexpected error occurred").ToJSON())
}
