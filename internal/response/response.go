package response

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope used by the operational endpoints.
type APIResponse struct {
	Data    any    `json:"data"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path"`
}

// APIError is the standard error response shape.
type APIError struct {
	Status  int      `json:"status"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
	Path    string   `json:"path"`
}

// pathFromContext returns the request path from Echo context.
func pathFromContext(c echo.Context) string {
	if c == nil || c.Request() == nil {
		return ""
	}
	return c.Request().URL.Path
}

// OK sends a 200 response with data wrapped in APIResponse.
func OK(c echo.Context, data any, message string) error {
	return c.JSON(http.StatusOK, APIResponse{
		Data:    data,
		Status:  http.StatusOK,
		Message: message,
		Path:    pathFromContext(c),
	})
}

// JSON sends data as is. The notes API returns bare resources.
func JSON(c echo.Context, status int, data any) error {
	return c.JSON(status, data)
}

// Created sends a bare 201 resource.
func Created(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, data)
}

// NoContent sends 204.
func NoContent(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// Error sends a JSON error response using APIError. With no details the
// message is repeated as the only error.
func Error(c echo.Context, status int, message string, errs ...string) error {
	if len(errs) == 0 {
		errs = []string{message}
	}
	return c.JSON(status, APIError{
		Status:  status,
		Message: message,
		Errors:  errs,
		Path:    pathFromContext(c),
	})
}

// BadRequest sends 400 with message and error details.
func BadRequest(c echo.Context, message string, errs ...string) error {
	return Error(c, http.StatusBadRequest, message, errs...)
}

// NotFound sends 404 with message and error details.
func NotFound(c echo.Context, message string, errs ...string) error {
	return Error(c, http.StatusNotFound, message, errs...)
}

// InternalError sends 500 with message and error details.
func InternalError(c echo.Context, message string, errs ...string) error {
	return Error(c, http.StatusInternalServerError, message, errs...)
}
