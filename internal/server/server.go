package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/rs/zerolog"

	"github.com/ota-api/notes/internal/batcher"
	"github.com/ota-api/notes/internal/config"
	"github.com/ota-api/notes/internal/handler"
	"github.com/ota-api/notes/internal/middleware"
	"github.com/ota-api/notes/internal/recorder"
	"github.com/ota-api/notes/internal/repository"
	"github.com/ota-api/notes/internal/service"
	"github.com/ota-api/notes/internal/storage"
)

// Deps are the collaborators New wires together. Only Notes is required;
// Logs and Archive are needed by the postgres and o3 sinks respectively.
type Deps struct {
	Notes    service.NoteStore
	Logs     recorder.LogStore
	Archive  *storage.Archive
	NewRelic *newrelic.Application
}

// Server holds the Echo app and everything that must be shut down with it.
type Server struct {
	Echo     *echo.Echo
	Config   *config.Config
	log      zerolog.Logger
	recorder *recorder.Async
	batcher  *batcher.Batcher // nil without archive
	recent   *recorder.Memory // nil without memory sink
}

// NewFromPool builds the server on top of a database pool and an optional
// archive.
func NewFromPool(cfg *config.Config, l zerolog.Logger, pool *pgxpool.Pool, archive *storage.Archive, nr *newrelic.Application) (*Server, error) {
	return New(cfg, l, Deps{
		Notes:    repository.NewNoteRepository(pool),
		Logs:     repository.NewLogRepository(pool),
		Archive:  archive,
		NewRelic: nr,
	})
}

// New builds the Echo server, the recording pipeline and the routes.
func New(cfg *config.Config, l zerolog.Logger, deps Deps) (*Server, error) {
	extractor, err := ipExtractor(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	s := &Server{Config: cfg, log: l}

	registry := recorder.DefaultRegistry()
	status := &handler.UploadStatus{}
	sinkDeps := recorder.Deps{
		Logs:       deps.Logs,
		Logger:     l,
		RecentSize: cfg.Recorder.RecentSize,
	}
	var pending func() int
	if deps.Archive != nil {
		s.batcher = batcher.New(batcher.Config{
			MaxBatchSize:  cfg.Batcher.MaxBatchSize,
			FlushInterval: cfg.Batcher.FlushInterval,
		}, deps.Archive, l, &batcher.Opts{OnFlush: status.SetLastFlush})
		sinkDeps.Archive = s.batcher
		pending = s.batcher.Pending
		l.Info().
			Int("batch_size", cfg.Batcher.MaxBatchSize).
			Dur("flush_interval", cfg.Batcher.FlushInterval).
			Msg("archive batcher enabled")
	}

	sinks, err := registry.Build(cfg.Recorder.Sinks, sinkDeps)
	if err != nil {
		s.stopBatcher()
		return nil, fmt.Errorf("recorder: %w", err)
	}
	if mem, ok := sinks.Sink("memory"); ok {
		s.recent, _ = mem.(*recorder.Memory)
	}
	key := cfg.Observability.TracingKey
	s.recorder = recorder.NewAsync(sinks, recorder.AsyncConfig{
		QueueSize: cfg.Recorder.QueueSize,
		Workers:   cfg.Recorder.Workers,
		Field:     key,
	}, l)
	l.Info().Strs("sinks", sinks.Names()).Msg("http log recorder ready")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = handler.ErrorHandler(l)
	e.IPExtractor = extractor

	e.Use(
		middleware.Tracing(key, l),
		middleware.NewRelic(deps.NewRelic, key),
		middleware.HTTPLoggerWithConfig(middleware.HTTPLoggerConfig{
			ExcludedPaths: cfg.Logging.ExcludedPaths,
			MaxBodyBytes:  cfg.Logging.MaxBodyBytes,
			TracingKey:    key,
			Recorder:      s.recorder,
			Logger:        l,
		}),
		echomw.Recover(),
		echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.Server.CORSAllowedOrigins}),
	)

	(&handler.NoteHandler{Notes: service.NewNoteService(deps.Notes)}).Register(e.Group("/api/notes"))

	logs := &handler.LogHandler{
		Registry: registry,
		Active:   sinks.Names(),
		Recent:   s.recent,
		Status:   status,
		Pending:  pending,
	}
	if deps.Archive != nil {
		logs.Archive = deps.Archive
	}
	logs.Register(e.Group("/logs"))

	e.GET("/health", handler.Health)
	e.GET("/v3/api-docs", handler.APIDocs)
	e.GET("/v3/api-docs.yaml", handler.APIDocsYAML)

	s.Echo = e
	return s, nil
}

// Start serves HTTP until Shutdown is called. A graceful stop is not an error.
func (s *Server) Start() error {
	srv := s.Echo.Server
	srv.Addr = ":" + s.Config.Server.Port
	srv.ReadTimeout = s.Config.Server.ReadTimeout
	srv.WriteTimeout = s.Config.Server.WriteTimeout
	srv.IdleTimeout = s.Config.Server.IdleTimeout

	s.log.Info().Str("addr", srv.Addr).Msg("http server listening")
	if err := s.Echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones, then drains
// the recorder queue and uploads what the batcher still holds.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.Echo.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http: %w", err))
	}
	if err := s.recorder.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("recorder: %w", err))
	}
	if s.batcher != nil {
		if err := s.batcher.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("batcher: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) stopBatcher() {
	if s.batcher != nil {
		_ = s.batcher.Stop(context.Background())
	}
}

// ipExtractor only believes X-Forwarded-For when it arrives from a configured
// proxy range. echo's own private, loopback and link-local defaults are off.
func ipExtractor(cfg config.ServerConfig) (echo.IPExtractor, error) {
	nets, err := cfg.TrustedNetworks()
	if err != nil {
		return nil, err
	}
	if len(nets) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, n := range nets {
		opts = append(opts, echo.TrustIPRange(n))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}
