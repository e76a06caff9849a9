package recorder

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ota-api/notes/internal/model"
)

// LogStore is the relational table of log entries. repository.LogRepository
// implements it.
type LogStore interface {
	Insert(ctx context.Context, entry model.LogEntry) error
}

// ArchiveQueue accepts entries for batched upload. batcher.Batcher
// implements it.
type ArchiveQueue interface {
	Add(entry model.LogEntry)
}

// Deps carries what sink factories may need. Fields a sink does not use can
// be left empty.
type Deps struct {
	Logs       LogStore
	Archive    ArchiveQueue
	Logger     zerolog.Logger
	RecentSize int
}

// ConfigField describes one setting a sink depends on.
type ConfigField struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // "string", "number", "bool"
	Required    bool   `json:"required"`
	Description string `json:"description"`
	Example     string `json:"example,omitempty"`
}

// SinkTypeInfo describes a sink type. Exposed via GET /logs/sinks.
type SinkTypeInfo struct {
	Type        string        `json:"type"`
	Description string        `json:"description"`
	Fields      []ConfigField `json:"fields"`
}

// Factory creates one sink type.
type Factory interface {
	Name() string
	ConfigSpec() SinkTypeInfo
	Create(deps Deps) (Recorder, error)
}

// Registry holds sink factories by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry has every built-in sink registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(postgresFactory{})
	r.Register(consoleFactory{})
	r.Register(memoryFactory{})
	r.Register(o3Factory{})
	return r
}

// Register adds or replaces the factory for factory.Name().
func (r *Registry) Register(factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[factory.Name()] = factory
}

// Create builds a single sink.
func (r *Registry) Create(name string, deps Deps) (Recorder, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown sink type: %s", name)
	}
	return factory.Create(deps)
}

// Build creates every named sink and fans out to them in the given order.
func (r *Registry) Build(names []string, deps Deps) (*Multi, error) {
	sinks := make([]Named, 0, len(names))
	for _, name := range names {
		rec, err := r.Create(name, deps)
		if err != nil {
			return nil, fmt.Errorf("sink %s: %w", name, err)
		}
		sinks = append(sinks, Named{Name: name, Recorder: rec})
	}
	return NewMulti(sinks...), nil
}

// ListRegistered returns the registered sink names, sorted.
func (r *Registry) ListRegistered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GetTypeInfo describes one sink type.
func (r *Registry) GetTypeInfo(name string) (SinkTypeInfo, bool) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return SinkTypeInfo{}, false
	}
	return factory.ConfigSpec(), true
}

// AllTypesInfo describes every sink type, sorted by type.
func (r *Registry) AllTypesInfo() []SinkTypeInfo {
	names := r.ListRegistered()
	out := make([]SinkTypeInfo, 0, len(names))
	for _, name := range names {
		if info, ok := r.GetTypeInfo(name); ok {
			out = append(out, info)
		}
	}
	return out
}
