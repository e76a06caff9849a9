package batcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ota-api/notes/internal/model"
)

type memUploader struct {
	mu      sync.Mutex
	batches [][]model.LogEntry
	fail    error
}

func (u *memUploader) PutBatch(_ context.Context, id string, entries []model.LogEntry) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.fail != nil {
		return "", u.fail
	}
	u.batches = append(u.batches, entries)
	return "logs/" + id, nil
}

func (u *memUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.batches)
}

func entry(i int) model.LogEntry {
	return model.LogEntry{Method: "GET", Path: "/api/notes/", StatusCode: 200 + i}
}

func TestBatcher_FlushesFullBatch(t *testing.T) {
	up := &memUploader{}
	var flushed []int
	var mu sync.Mutex
	b := New(Config{MaxBatchSize: 3, FlushInterval: time.Hour}, up, zerolog.Nop(), &Opts{
		OnFlush: func(count int, _ string) {
			mu.Lock()
			flushed = append(flushed, count)
			mu.Unlock()
		},
	})
	defer b.Stop(context.Background())

	for i := 0; i < 3; i++ {
		b.Add(entry(i))
	}

	require.Eventually(t, func() bool { return up.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, up.batches[0], 3)
	assert.Equal(t, 0, b.Pending())
	mu.Lock()
	assert.Equal(t, []int{3}, flushed)
	mu.Unlock()
}

func TestBatcher_FlushesOnInterval(t *testing.T) {
	up := &memUploader{}
	b := New(Config{MaxBatchSize: 100, FlushInterval: 10 * time.Millisecond}, up, zerolog.Nop(), nil)
	defer b.Stop(context.Background())

	b.Add(entry(0))

	require.Eventually(t, func() bool { return up.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatcher_StopFlushesRemainder(t *testing.T) {
	up := &memUploader{}
	b := New(Config{MaxBatchSize: 2, FlushInterval: time.Hour}, up, zerolog.Nop(), nil)

	b.Add(entry(0))
	require.NoError(t, b.Stop(context.Background()))

	assert.Equal(t, 1, up.count())
	assert.Equal(t, 0, b.Pending())
}

func TestBatcher_FailedUploadIsRequeued(t *testing.T) {
	up := &memUploader{fail: errors.New("bucket unavailable")}
	b := New(Config{MaxBatchSize: 10, FlushInterval: time.Hour}, up, zerolog.Nop(), nil)

	b.Add(entry(0))
	b.Add(entry(1))

	err := b.Flush(context.Background())
	assert.ErrorIs(t, err, up.fail)
	assert.Equal(t, 2, b.Pending())

	up.mu.Lock()
	up.fail = nil
	up.mu.Unlock()

	require.NoError(t, b.Stop(context.Background()))
	require.Equal(t, 1, up.count())
	assert.Equal(t, 200, up.batches[0][0].StatusCode, "order is kept")
}

func TestBatcher_MaxPending(t *testing.T) {
	up := &memUploader{fail: errors.New("down")}
	b := New(Config{MaxBatchSize: 2, FlushInterval: time.Hour, MaxPending: 4}, up, zerolog.Nop(), nil)
	defer func() {
		up.mu.Lock()
		up.fail = nil
		up.mu.Unlock()
		_ = b.Stop(context.Background())
	}()

	for i := 0; i < 10; i++ {
		b.Add(entry(i))
	}
	assert.LessOrEqual(t, b.Pending(), 4)
}
