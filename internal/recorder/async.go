package recorder

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ota-api/notes/internal/model"
)

var (
	// ErrQueueFull is returned by Async.Append when the entry was dropped.
	ErrQueueFull = errors.New("recorder queue full")
	// ErrClosed is returned by Async.Append after Close.
	ErrClosed = errors.New("recorder closed")
)

type AsyncConfig struct {
	QueueSize int
	Workers   int
	// Field is the log field the correlation id is written under.
	Field string
}

type job struct {
	ctx   context.Context
	entry model.LogEntry
}

// Async queues entries for a fixed set of workers that pass them on to
// next. Append never blocks.
type Async struct {
	next  Recorder
	cfg   AsyncConfig
	log   zerolog.Logger
	queue chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsync starts the workers.
func NewAsync(next Recorder, cfg AsyncConfig, l zerolog.Logger) *Async {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Field == "" {
		cfg.Field = "correlation_id"
	}
	a := &Async{
		next:  next,
		cfg:   cfg,
		log:   l.With().Str("component", "recorder").Logger(),
		queue: make(chan job, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		a.wg.Add(1)
		go a.work()
	}
	return a
}

// Append enqueues entry. The request's cancellation does not reach the
// sinks, only its values do.
func (a *Async) Append(ctx context.Context, entry model.LogEntry) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- job{ctx: context.WithoutCancel(ctx), entry: entry}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Len is the number of queued entries.
func (a *Async) Len() int { return len(a.queue) }

func (a *Async) work() {
	defer a.wg.Done()
	for j := range a.queue {
		if err := a.next.Append(j.ctx, j.entry); err != nil {
			a.log.Warn().Err(err).
				Str(a.cfg.Field, j.entry.CorrelationID).
				Str("path", j.entry.Path).
				Msg("failed to persist http log")
		}
	}
}

// Close stops accepting entries and waits for the queue to drain, or for
// ctx to end.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
