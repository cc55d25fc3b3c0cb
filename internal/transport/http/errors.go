package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/online_catalog/internal/apperr"
	"github.com/Skotchmaster/online_catalog/internal/logging"
)

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ErrorHandler renders every failure as {"error": msg}. Causes are added as
// "details" only in development.
func ErrorHandler(development bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg := classify(err)
		l := logging.FromContext(c.Request().Context())
		if status >= http.StatusInternalServerError {
			l.Error("request_failed", "status", status, "error", err)
		} else {
			l.Debug("request_rejected", "status", status, "reason", msg, "error", err)
		}

		body := errorBody{Error: msg}
		if development {
			body.Details = err.Error()
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, body)
		}
		if werr != nil {
			l.Error("error_response_failed", "error", werr)
		}
	}
}

func classify(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Code < http.StatusInternalServerError {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, msg
	}
	kind := apperr.KindOf(err)
	return kind.Status(), apperr.PublicMessage(err)
}
