package recorder

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ota-api/notes/internal/model"
)

// Postgres writes entries to the logs table.
type Postgres struct {
	store LogStore
}

func NewPostgres(store LogStore) *Postgres {
	return &Postgres{store: store}
}

func (p *Postgres) Append(ctx context.Context, entry model.LogEntry) error {
	return p.store.Insert(ctx, entry)
}

type postgresFactory struct{}

func (postgresFactory) Name() string { return "postgres" }

func (postgresFactory) ConfigSpec() SinkTypeInfo {
	return SinkTypeInfo{
		Type:        "postgres",
		Description: "Inserts each entry into the logs table",
		Fields: []ConfigField{
			{Name: "database.host", Type: "string", Required: true, Description: "PostgreSQL host", Example: "localhost"},
			{Name: "database.name", Type: "string", Required: true, Description: "Database holding the logs table", Example: "notes"},
		},
	}
}

func (postgresFactory) Create(deps Deps) (Recorder, error) {
	if deps.Logs == nil {
		return nil, errors.New("no database available")
	}
	return NewPostgres(deps.Logs), nil
}

// Console writes each entry as one log line.
type Console struct {
	log zerolog.Logger
}

func NewConsole(l zerolog.Logger) *Console {
	return &Console{log: l.With().Str("component", "http_log").Logger()}
}

func (c *Console) Append(_ context.Context, entry model.LogEntry) error {
	c.log.Info().
		Str("correlation_id", entry.CorrelationID).
		Str("client_address", entry.ClientAddress).
		Str("method", entry.Method).
		Str("path", entry.Path).
		Int("status", entry.StatusCode).
		Str("request_body", entry.RequestBody).
		Str("response_body", entry.ResponseBody).
		Time("timestamp", entry.Timestamp).
		Msg("http exchange")
	return nil
}

type consoleFactory struct{}

func (consoleFactory) Name() string { return "console" }

func (consoleFactory) ConfigSpec() SinkTypeInfo {
	return SinkTypeInfo{
		Type:        "console",
		Description: "Writes each entry to the process log",
		Fields: []ConfigField{
			{Name: "observability.log_level", Type: "string", Required: false, Description: "Entries are logged at info", Example: "info"},
		},
	}
}

func (consoleFactory) Create(deps Deps) (Recorder, error) {
	return NewConsole(deps.Logger), nil
}

// Memory keeps the most recent entries in a ring.
type Memory struct {
	mu      sync.RWMutex
	entries []model.LogEntry
	next    int
	full    bool
}

// NewMemory keeps at most size entries. size below 1 is treated as 1.
func NewMemory(size int) *Memory {
	return &Memory{entries: make([]model.LogEntry, max(size, 1))}
}

func (m *Memory) Append(_ context.Context, entry model.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[m.next] = entry
	m.next = (m.next + 1) % len(m.entries)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all
// kept entries.
func (m *Memory) Recent(limit int) []model.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := m.next
	if m.full {
		n = len(m.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]model.LogEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (m.next - i + len(m.entries)) % len(m.entries)
		out = append(out, m.entries[idx])
	}
	return out
}

// ByCorrelationID returns the kept entry with the given id.
func (m *Memory) ByCorrelationID(id string) (model.LogEntry, bool) {
	for _, e := range m.Recent(0) {
		if e.CorrelationID == id {
			return e, true
		}
	}
	return model.LogEntry{}, false
}

type memoryFactory struct{}

func (memoryFactory) Name() string { return "memory" }

func (memoryFactory) ConfigSpec() SinkTypeInfo {
	return SinkTypeInfo{
		Type:        "memory",
		Description: "Keeps recent entries in memory for GET /logs/recent",
		Fields: []ConfigField{
			{Name: "recorder.recent_size", Type: "number", Required: false, Description: "Number of entries kept", Example: "100"},
		},
	}
}

func (memoryFactory) Create(deps Deps) (Recorder, error) {
	return NewMemory(deps.RecentSize), nil
}

// Archive hands entries to the batch uploader. Upload failures surface in
// the batcher's own log, not here.
type Archive struct {
	queue ArchiveQueue
	now   func() time.Time
}

func NewArchive(queue ArchiveQueue) *Archive {
	return &Archive{queue: queue, now: time.Now}
}

func (a *Archive) Append(_ context.Context, entry model.LogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.now().UTC()
	}
	a.queue.Add(entry)
	return nil
}

type o3Factory struct{}

func (o3Factory) Name() string { return "o3" }

func (o3Factory) ConfigSpec() SinkTypeInfo {
	return SinkTypeInfo{
		Type:        "o3",
		Description: "Uploads gzipped JSON batches to an S3-compatible bucket",
		Fields: []ConfigField{
			{Name: "storage.o3.endpoint", Type: "string", Required: true, Description: "S3-compatible endpoint", Example: "https://o3-rc2.akave.xyz"},
			{Name: "storage.o3.bucket", Type: "string", Required: true, Description: "Bucket for log batches", Example: "notes-logs"},
			{Name: "storage.o3.access_key", Type: "string", Required: true, Description: "Access key id"},
			{Name: "storage.o3.secret_key", Type: "string", Required: true, Description: "Secret access key"},
			{Name: "batcher.max_batch_size", Type: "number", Required: false, Description: "Entries per batch", Example: "500"},
			{Name: "batcher.flush_interval", Type: "string", Required: false, Description: "Upload at least this often", Example: "30s"},
		},
	}
}

func (o3Factory) Create(deps Deps) (Recorder, error) {
	if deps.Archive == nil {
		return nil, errors.New("o3 storage not configured")
	}
	return NewArchive(deps.Archive), nil
}
