// Package errs holds the domain errors handlers return and the HTTP error
// handler maps to status codes.
package errs

import "fmt"

// NotFound means the addressed resource does not exist.
type NotFound struct {
	Message string
}

func (e *NotFound) Error() string { return e.Message }

// BadRequest means the request is well formed but cannot be served as asked.
type BadRequest struct {
	Message string
}

func (e *BadRequest) Error() string { return e.Message }

func NewNotFound(format string, args ...any) error {
	return &NotFound{Message: fmt.Sprintf(format, args...)}
}

func NewBadRequest(format string, args ...any) error {
	return &BadRequest{Message: fmt.Sprintf(format, args...)}
}
