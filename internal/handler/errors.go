package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ota-api/notes/internal/cachedbody"
	"github.com/ota-api/notes/internal/errs"
	"github.com/ota-api/notes/internal/response"
	"github.com/ota-api/notes/internal/tracing"
)

// ErrorHandler renders every error returned by a handler as an APIError.
// Once a response is committed it does nothing, so an error that was already
// written by the capture stage is not written twice.
func ErrorHandler(l zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if cw, ok := c.Response().Writer.(*cachedbody.ResponseWriter); ok && cw.Committed() {
			requestLogger(c, l).Error().Err(err).Msg("response already started, error not rendered")
			return
		}

		status, message, details := classify(err)
		log := requestLogger(c, l)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		} else {
			log.Debug().Err(err).Int("status", status).Msg("request rejected")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = response.Error(c, status, message, details...)
		}
		if err != nil {
			log.Error().Err(err).Msg("write error response")
		}
	}
}

func classify(err error) (int, string, []string) {
	var (
		notFound   *errs.NotFound
		badRequest *errs.BadRequest
		invalid    validator.ValidationErrors
		readErr    *cachedbody.ReadError
		httpErr    *echo.HTTPError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound, notFound.Message, nil
	case errors.As(err, &badRequest):
		return http.StatusBadRequest, badRequest.Message, nil
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "Invalid data", validationMessages(invalid)
	case errors.As(err, &readErr):
		if readErr.TooLarge() {
			return http.StatusRequestEntityTooLarge, "Request body too large", nil
		}
		return http.StatusBadRequest, "Request body could not be read", nil
	case errors.Is(err, cachedbody.ErrWriterSelected):
		return http.StatusInternalServerError, "Internal server error", nil
	case errors.As(err, &httpErr):
		msg := http.StatusText(httpErr.Code)
		if m, ok := httpErr.Message.(string); ok && m != "" {
			msg = m
		}
		return httpErr.Code, msg, nil
	default:
		return http.StatusInternalServerError, "Internal server error", nil
	}
}

func validationMessages(verrs validator.ValidationErrors) []string {
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			out = append(out, fmt.Sprintf("%s is required.", fe.Field()))
		case "min":
			out = append(out, fmt.Sprintf("%s must be at least %s characters long.", fe.Field(), fe.Param()))
		case "max":
			out = append(out, fmt.Sprintf("%s must be at most %s characters long.", fe.Field(), fe.Param()))
		default:
			out = append(out, fmt.Sprintf("%s is invalid.", fe.Field()))
		}
	}
	return out
}

// requestLogger prefers the logger Tracing bound to the request.
func requestLogger(c echo.Context, fallback zerolog.Logger) *zerolog.Logger {
	if l := tracing.Logger(c.Request().Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &fallback
}

// Validator adapts validator/v10 to echo.Validator.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

func (v *Validator) Validate(i any) error {
	return v.validate.Struct(i)
}
