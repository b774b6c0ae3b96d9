package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Client-facing messages.
const (
	msgInvalidPeriod = "The requested period is not valid."
	msgNoData        = "No period data available."
	msgPeriodError   = "Period data error."
)

// AppError carries the HTTP status and the message shown to the client. Err is
// logged, never returned.
type AppError struct {
	Status  int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func BadRequest(msg string, err error) *AppError {
	return &AppError{Status: http.StatusBadRequest, Message: msg, Err: err}
}

func NotFound(msg string) *AppError {
	return &AppError{Status: http.StatusNotFound, Message: msg}
}

func Internal(msg string, err error) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Message: msg, Err: err}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError renders err as {"error": msg}. Unknown errors become a plain 500.
func writeError(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.JSON(appErr.Status, errorBody{Error: appErr.Message})
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return c.JSON(httpErr.Code, errorBody{Error: http.StatusText(httpErr.Code)})
	}

	return c.JSON(http.StatusInternalServerError, errorBody{Error: http.StatusText(http.StatusInternalServerError)})
}
