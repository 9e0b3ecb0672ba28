package apperr

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Body is the JSON shape of every error response.
type Body struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HTTPErrorHandler renders errors returned by handlers and middleware.
// When exposeDetails is false, details of transient (5xx) failures are
// logged but not sent to the caller.
func HTTPErrorHandler(logger zerolog.Logger, exposeDetails bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := render(err, exposeDetails)
		rid, _ := c.Get("request_id").(string)

		evt := logger.Warn()
		if status >= http.StatusInternalServerError {
			evt = logger.Error()
		}
		evt.Err(err).
			Str("request_id", rid).
			Int("status", status).
			Str("path", c.Request().URL.Path).
			Msg("request failed")

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func render(err error, exposeDetails bool) (int, Body) {
	if ae, ok := As(err); ok {
		body := Body{Error: ae.Message, Details: ae.Details}
		if ae.Kind == KindTransient && !exposeDetails {
			body.Details = ""
		}
		return ae.Status(), body
	}

	if he, ok := err.(*echo.HTTPError); ok {
		msg := fmt.Sprintf("%v", he.Message)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		body := Body{Error: msg}
		if he.Internal != nil && exposeDetails {
			body.Details = he.Internal.Error()
		}
		return he.Code, body
	}

	body := Body{Error: "internal server error"}
	if exposeDetails {
		body.Details = err.Error()
	}
	return http.StatusInternalServerError, body
}
