// Package recorder persists captured HTTP exchanges.
//
// A Recorder is the only thing the logging stage knows about. Concrete sinks
// (postgres, console, memory, o3) are built by name through a Registry and
// combined with Multi; Async puts a bounded queue in front so the request
// path never waits on storage.
package recorder

import (
	"context"
	"errors"
	"fmt"

	"github.com/ota-api/notes/internal/model"
)

// Recorder stores one log entry. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Append(ctx context.Context, entry model.LogEntry) error
}

// Func adapts a function to Recorder.
type Func func(ctx context.Context, entry model.LogEntry) error

func (f Func) Append(ctx context.Context, entry model.LogEntry) error { return f(ctx, entry) }

// Discard drops every entry.
var Discard Recorder = Func(func(context.Context, model.LogEntry) error { return nil })

// Named pairs a sink with the name it was registered under.
type Named struct {
	Name string
	Recorder
}

// Multi appends every entry to all sinks, in order. A failing sink does not
// stop the others; their errors are joined.
type Multi struct {
	sinks []Named
}

func NewMulti(sinks ...Named) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Append(ctx context.Context, entry model.LogEntry) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Sink returns the sink registered under name.
func (m *Multi) Sink(name string) (Recorder, bool) {
	for _, s := range m.sinks {
		if s.Name == name {
			return s.Recorder, true
		}
	}
	return nil, false
}

// Names lists the active sinks.
func (m *Multi) Names() []string {
	out := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		out = append(out, s.Name)
	}
	return out
}
