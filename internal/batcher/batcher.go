// Package batcher groups log entries and uploads them as archive batches,
// either when a batch is full or on a fixed interval.
package batcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ota-api/notes/internal/model"
)

// Uploader stores one batch and returns its key. storage.Archive
// implements it.
type Uploader interface {
	PutBatch(ctx context.Context, batchID string, entries []model.LogEntry) (string, error)
}

type Config struct {
	MaxBatchSize  int
	FlushInterval time.Duration
	// MaxPending bounds entries kept in memory while uploads fail.
	MaxPending int
}

func DefaultConfig() Config {
	return Config{
		MaxBatchSize:  500,
		FlushInterval: 30 * time.Second,
		MaxPending:    5000,
	}
}

// Opts are optional hooks.
type Opts struct {
	OnFlush func(count int, key string)
}

// Batcher is safe for concurrent use.
type Batcher struct {
	cfg  Config
	up   Uploader
	log  zerolog.Logger
	opts Opts

	mu      sync.Mutex
	pending []model.LogEntry

	full     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New starts the background flush loop. Call Stop to flush and end it.
func New(cfg Config, up Uploader, l zerolog.Logger, opts *Opts) *Batcher {
	def := DefaultConfig()
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.MaxPending < cfg.MaxBatchSize {
		cfg.MaxPending = cfg.MaxBatchSize * 10
	}
	b := &Batcher{
		cfg:  cfg,
		up:   up,
		log:  l.With().Str("component", "batcher").Logger(),
		full: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if opts != nil {
		b.opts = *opts
	}
	go b.loop()
	return b
}

// Add queues entry. When a full batch is available the loop is woken up.
func (b *Batcher) Add(entry model.LogEntry) {
	b.mu.Lock()
	if len(b.pending) >= b.cfg.MaxPending {
		b.pending = b.pending[1:]
		b.log.Warn().Msg("pending entries over limit, dropped oldest")
	}
	b.pending = append(b.pending, entry)
	ready := len(b.pending) >= b.cfg.MaxBatchSize
	b.mu.Unlock()

	if ready {
		select {
		case b.full <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of entries not yet uploaded.
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *Batcher) loop() {
	defer close(b.done)
	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flushAll(context.Background())
		case <-b.full:
			b.flushAll(context.Background())
		case <-b.stop:
			return
		}
	}
}

// Flush uploads everything pending, one batch at a time.
func (b *Batcher) Flush(ctx context.Context) error {
	return b.flushAll(ctx)
}

func (b *Batcher) flushAll(ctx context.Context) error {
	for {
		b.mu.Lock()
		n := min(len(b.pending), b.cfg.MaxBatchSize)
		if n == 0 {
			b.mu.Unlock()
			return nil
		}
		batch := make([]model.LogEntry, n)
		copy(batch, b.pending[:n])
		b.pending = b.pending[n:]
		b.mu.Unlock()

		key, err := b.up.PutBatch(ctx, uuid.NewString(), batch)
		if err != nil {
			b.requeue(batch)
			b.log.Error().Err(err).Int("count", n).Msg("batch upload failed")
			return err
		}
		b.log.Debug().Int("count", n).Str("key", key).Msg("batch uploaded")
		if b.opts.OnFlush != nil {
			b.opts.OnFlush(n, key)
		}
	}
}

// requeue puts a failed batch back in front, within MaxPending.
func (b *Batcher) requeue(batch []model.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	merged := append(batch, b.pending...)
	if over := len(merged) - b.cfg.MaxPending; over > 0 {
		merged = merged[over:]
	}
	b.pending = merged
}

// Stop ends the loop and uploads what is left.
func (b *Batcher) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.stop) })
	select {
	case <-b.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return b.flushAll(ctx)
}
