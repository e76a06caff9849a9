package middleware

import (
	"fmt"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ota-api/notes/internal/cachedbody"
	"github.com/ota-api/notes/internal/model"
	"github.com/ota-api/notes/internal/recorder"
	"github.com/ota-api/notes/internal/tracing"
)

// HTTPLoggerConfig configures HTTPLogger.
type HTTPLoggerConfig struct {
	// ExcludedPaths are regular expressions matched anywhere in the request
	// path. Matching requests pass through untouched and are not recorded.
	ExcludedPaths []string
	// MaxBodyBytes caps the buffered request body. 0 means no cap.
	MaxBodyBytes int64
	// TracingKey is where Tracing stored the correlation id.
	TracingKey string
	Recorder   recorder.Recorder
	Logger     zerolog.Logger
}

// HTTPLoggerWithConfig returns the capture stage or panics on an invalid
// config, like echo's own *WithConfig constructors.
func HTTPLoggerWithConfig(config HTTPLoggerConfig) echo.MiddlewareFunc {
	mw, err := config.ToMiddleware()
	if err != nil {
		panic(err)
	}
	return mw
}

// ToMiddleware builds the capture stage. Each recorded request produces
// exactly one LogEntry, including requests that ended in an error.
func (config HTTPLoggerConfig) ToMiddleware() (echo.MiddlewareFunc, error) {
	excluded := make([]*regexp.Regexp, 0, len(config.ExcludedPaths))
	for _, p := range config.ExcludedPaths {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("excluded path %q: %w", p, err)
		}
		excluded = append(excluded, re)
	}
	if config.Recorder == nil {
		config.Recorder = recorder.Discard
	}
	if config.TracingKey == "" {
		config.TracingKey = "tracing_id"
	}
	l := &httpLogger{config: config, excluded: excluded}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l.skip(c.Request().URL.Path) {
				return next(c)
			}
			return l.serve(c, next)
		}
	}, nil
}

type httpLogger struct {
	config   HTTPLoggerConfig
	excluded []*regexp.Regexp
}

func (l *httpLogger) skip(path string) bool {
	for _, re := range l.excluded {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

func (l *httpLogger) serve(c echo.Context, next echo.HandlerFunc) (err error) {
	req := c.Request()
	res := c.Response()
	original := res.Writer

	cw := cachedbody.NewResponseWriter(original)
	res.Writer = cw
	defer func() { res.Writer = original }()

	requestBody := ""
	cr, readErr := cachedbody.NewRequest(original, req, l.config.MaxBodyBytes)
	if readErr == nil {
		requestBody = cr.Text()
		c.SetRequest(cr.Request())
		defer c.SetRequest(req)
	}

	// Runs before the request and writer are restored, also when the chain
	// panics (e.g. http.ErrAbortHandler, which Recover passes on).
	defer func() {
		p := recover()
		if ferr := cw.FlushBuffer(); ferr != nil {
			l.config.Logger.Warn().Err(ferr).Msg("flush response buffer")
		}
		status := cw.Status()
		if p != nil && !cw.Committed() {
			status = http.StatusInternalServerError
		}
		l.record(c, model.LogEntry{
			ClientAddress: clientAddress(c),
			Method:        req.Method,
			Path:          req.URL.Path,
			StatusCode:    status,
			RequestBody:   requestBody,
			ResponseBody:  cw.Text(),
			Timestamp:     time.Now().UTC(),
		})
		if p != nil {
			panic(p)
		}
	}()

	if readErr != nil {
		err = readErr
	} else {
		err = next(c)
	}
	// Writes through the wrapper bypass echo's bookkeeping; keep the error
	// handler from writing a second body.
	if cw.Committed() && !res.Committed {
		res.Committed = true
		res.Status = cw.Status()
		if err != nil {
			l.config.Logger.Error().Err(err).
				Str("path", req.URL.Path).
				Msg("handler failed after response started")
		}
	}
	if err != nil {
		c.Error(err)
	}
	return err
}

// clientAddress is the peer address unless the server was configured with
// an IPExtractor that knows which proxies to trust.
func clientAddress(c echo.Context) string {
	if c.Echo().IPExtractor != nil {
		return c.RealIP()
	}
	host, _, err := net.SplitHostPort(c.Request().RemoteAddr)
	if err != nil {
		return c.Request().RemoteAddr
	}
	return host
}

func (l *httpLogger) record(c echo.Context, entry model.LogEntry) {
	key := l.config.TracingKey
	id, ok := CorrelationID(c, key)
	if !ok {
		l.config.Logger.Error().
			Str("method", entry.Method).
			Str("path", entry.Path).
			Msg("no correlation id bound to request")
		id = tracing.UnknownID
	}
	entry.CorrelationID = id

	if err := l.config.Recorder.Append(c.Request().Context(), entry); err != nil {
		l.config.Logger.Warn().Err(err).
			Str(key, id).
			Str("path", entry.Path).
			Msg("failed to record http log")
	}
}
