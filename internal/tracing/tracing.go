// Package tracing owns the per-request correlation id.
//
// The id is created once at the edge of the pipeline and threaded through
// the request's context.Context, together with a zerolog logger that already
// carries it, so that anything below the edge can log with the id without
// passing it around explicitly.
package tracing

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// UnknownID is substituted when a log entry has to be written for a request
// that never went through the tracing stage.
const UnknownID = "UNKNOWN"

type ctxKey struct{}

// NewID returns a fresh 128-bit random id as 32 uppercase hex characters.
func NewID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// WithID binds id to ctx. The returned context also carries base with field
// set to id, retrievable with Logger or zerolog.Ctx.
func WithID(ctx context.Context, base zerolog.Logger, field, id string) context.Context {
	l := base.With().Str(field, id).Logger()
	ctx = context.WithValue(ctx, ctxKey{}, id)
	return l.WithContext(ctx)
}

// IDFromContext returns the id bound by WithID.
func IDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// Logger returns the request-scoped logger. Outside a traced request it is
// zerolog's disabled logger unless a default context logger is set.
func Logger(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
