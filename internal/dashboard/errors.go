package dashboard

import (
	"errors"
	"fmt"
	"net/http"

	"stockwatch/internal/store"

	"github.com/labstack/echo/v4"
)

// ErrorMessage is rendered by echo as {"message": Error()}.
type ErrorMessage struct {
	Reason string `json:"reason"`
	Advice string `json:"advice,omitempty"`
	Cause  error  `json:"-"`
}

func (e ErrorMessage) Error() string {
	msg := e.Reason
	if e.Advice != "" {
		msg += " (" + e.Advice + ")"
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e ErrorMessage) Unwrap() error {
	return e.Cause
}

func newError(code int, reason string, advice string) *echo.HTTPError {
	msg := ErrorMessage{Reason: reason, Advice: advice}
	return echo.NewHTTPError(code, msg).SetInternal(msg)
}

func badRequest(reason string) *echo.HTTPError {
	return newError(http.StatusBadRequest, reason, "")
}

func notFound(reason string) *echo.HTTPError {
	return newError(http.StatusNotFound, reason, "")
}

// storageError reports a failed read. Every store failure is shown as
// unavailable; the dashboard retries on its next refresh.
func storageError(err error) *echo.HTTPError {
	msg := ErrorMessage{Reason: "price storage is unavailable", Cause: err}
	if !errors.Is(err, store.ErrUnavailable) {
		msg.Advice = "check the dashboard logs"
	}
	return echo.NewHTTPError(http.StatusServiceUnavailable, msg).SetInternal(msg)
}
