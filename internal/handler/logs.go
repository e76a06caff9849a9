package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ota-api/notes/internal/model"
	"github.com/ota-api/notes/internal/recorder"
	"github.com/ota-api/notes/internal/response"
	"github.com/ota-api/notes/internal/storage"
)

// ArchiveReader reads archived log batches. *storage.Archive implements it,
// including as a nil pointer.
type ArchiveReader interface {
	List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error)
	Entries(ctx context.Context, key string) ([]model.LogEntry, error)
}

// UploadStatus tracks the last archive upload.
type UploadStatus struct {
	mu        sync.Mutex
	lastAt    time.Time
	lastKey   string
	lastCount int
}

// SetLastFlush is meant as the batcher's OnFlush hook.
func (s *UploadStatus) SetLastFlush(count int, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAt = time.Now().UTC()
	s.lastKey = key
	s.lastCount = count
}

func (s *UploadStatus) snapshot() (time.Time, string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAt, s.lastKey, s.lastCount
}

// LogHandler serves the /logs endpoints: recent captured exchanges, the sink
// catalogue and the O3 archive.
type LogHandler struct {
	Registry *recorder.Registry
	// Active are the configured sink names.
	Active []string
	// Recent is nil when the memory sink is not configured.
	Recent  *recorder.Memory
	Archive ArchiveReader
	Status  *UploadStatus
	// Pending reports entries waiting for upload; nil without archive.
	Pending func() int
}

func (h *LogHandler) Register(g *echo.Group) {
	g.GET("/recent", h.ListRecent)
	g.GET("/recent/:id", h.GetRecent)
	g.GET("/status", h.GetStatus)
	g.GET("/sinks", h.ListSinks)
	g.GET("/sinks/:type", h.GetSinkType)
	g.GET("/archives", h.ListArchives)
	g.GET("/archives/content", h.GetArchiveContent)
}

// ListRecent returns the newest captured exchanges (GET /logs/recent?limit=).
func (h *LogHandler) ListRecent(c echo.Context) error {
	if h.Recent == nil {
		return response.OK(c, map[string]any{"logs": []model.LogEntry{}}, "memory sink disabled")
	}
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return response.BadRequest(c, "invalid limit", "limit must be a non-negative number")
		}
		limit = n
	}
	return response.OK(c, map[string]any{"logs": h.Recent.Recent(limit)}, "")
}

// GetRecent returns one kept exchange by correlation id (GET /logs/recent/:id).
func (h *LogHandler) GetRecent(c echo.Context) error {
	id := c.Param("id")
	if h.Recent != nil {
		if entry, ok := h.Recent.ByCorrelationID(id); ok {
			return response.OK(c, entry, "")
		}
	}
	return response.NotFound(c, "log entry not found", "no recent entry with id "+id)
}

// GetStatus reports the archive uploader state (GET /logs/status).
func (h *LogHandler) GetStatus(c echo.Context) error {
	body := map[string]any{
		"sinks":           h.Active,
		"archive_enabled": h.Pending != nil,
	}
	if h.Pending != nil {
		body["pending_count"] = h.Pending()
	}
	if h.Status != nil {
		at, key, count := h.Status.snapshot()
		if !at.IsZero() {
			body["last_upload_at"] = at
			body["last_upload_key"] = key
			body["last_upload_count"] = count
		}
	}
	return response.OK(c, body, "")
}

// ListSinks returns every sink type and which ones are active (GET /logs/sinks).
func (h *LogHandler) ListSinks(c echo.Context) error {
	return response.OK(c, map[string]any{
		"active": h.Active,
		"types":  h.Registry.AllTypesInfo(),
	}, "")
}

// GetSinkType returns the settings of one sink type (GET /logs/sinks/:type).
func (h *LogHandler) GetSinkType(c echo.Context) error {
	name := c.Param("type")
	info, ok := h.Registry.GetTypeInfo(name)
	if !ok {
		return response.NotFound(c, "unknown sink type", "unknown sink type: "+name)
	}
	return response.OK(c, info, "")
}

// ListArchives lists uploaded batches (GET /logs/archives?prefix=).
func (h *LogHandler) ListArchives(c echo.Context) error {
	if h.Archive == nil {
		return response.OK(c, map[string]any{"objects": []storage.ObjectInfo{}}, "O3 not configured")
	}
	list, err := h.Archive.List(c.Request().Context(), c.QueryParam("prefix"))
	if errors.Is(err, storage.ErrNotConfigured) {
		return response.OK(c, map[string]any{"objects": []storage.ObjectInfo{}}, "O3 not configured")
	}
	if err != nil {
		return response.InternalError(c, "list archives failed", err.Error())
	}
	return response.OK(c, map[string]any{"objects": list}, "")
}

// GetArchiveContent returns the entries of one batch (GET /logs/archives/content?key=).
func (h *LogHandler) GetArchiveContent(c echo.Context) error {
	key := c.QueryParam("key")
	if key == "" {
		return response.BadRequest(c, "missing key", "query param key is required")
	}
	if h.Archive == nil {
		return response.BadRequest(c, "O3 not configured")
	}
	logs, err := h.Archive.Entries(c.Request().Context(), key)
	if errors.Is(err, storage.ErrNotConfigured) {
		return response.BadRequest(c, "O3 not configured")
	}
	if err != nil {
		return response.InternalError(c, "get archive content failed", err.Error())
	}
	return response.OK(c, map[string]any{"logs": logs, "key": key}, "")
}

// Health handles GET /health.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
