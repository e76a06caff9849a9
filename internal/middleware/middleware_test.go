package middleware

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ota-api/notes/internal/cachedbody"
	"github.com/ota-api/notes/internal/handler"
	"github.com/ota-api/notes/internal/model"
	"github.com/ota-api/notes/internal/recorder"
	"github.com/ota-api/notes/internal/tracing"
)

const key = "tracing_id"

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// lines decodes every JSON log line written so far.
func (b *syncBuffer) lines(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(strings.NewReader(b.String()))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

type pipeline struct {
	e    *echo.Echo
	mem  *recorder.Memory
	logs *syncBuffer
}

func newPipeline(t *testing.T, rec recorder.Recorder, maxBody int64) *pipeline {
	t.Helper()
	p := &pipeline{e: echo.New(), mem: recorder.NewMemory(10), logs: &syncBuffer{}}
	if rec == nil {
		rec = p.mem
	}
	l := zerolog.New(p.logs)

	p.e.HTTPErrorHandler = handler.ErrorHandler(l)
	p.e.Use(Tracing(key, l))
	p.e.Use(HTTPLoggerWithConfig(HTTPLoggerConfig{
		ExcludedPaths: []string{"/swagger-ui", "/v3/api-docs"},
		MaxBodyBytes:  maxBody,
		TracingKey:    key,
		Recorder:      rec,
		Logger:        l,
	}))
	p.e.Use(echomw.Recover())
	return p
}

func (p *pipeline) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	p.e.ServeHTTP(rec, req)
	return rec
}

func TestPipeline_CreateNote(t *testing.T) {
	p := newPipeline(t, nil, 0)
	const reqBody = `{"title":"hello","body":"world"}`
	const resBody = `{"id":5,"title":"hello","body":"world"}`

	p.e.POST("/api/notes/", func(c echo.Context) error {
		raw, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		if string(raw) != reqBody {
			return errors.New("handler saw a different body")
		}
		return c.JSONBlob(http.StatusCreated, []byte(resBody))
	})

	rec := p.do(http.MethodPost, "/api/notes/", reqBody)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, resBody, rec.Body.String())

	entries := p.mem.Recent(0)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Len(t, e.CorrelationID, 32)
	assert.Equal(t, strings.ToUpper(e.CorrelationID), e.CorrelationID)
	assert.Equal(t, "192.0.2.1", e.ClientAddress)
	assert.Equal(t, http.MethodPost, e.Method)
	assert.Equal(t, "/api/notes/", e.Path)
	assert.Equal(t, http.StatusCreated, e.StatusCode)
	assert.Equal(t, reqBody, e.RequestBody)
	assert.Equal(t, resBody, e.ResponseBody)
	assert.False(t, e.Timestamp.IsZero())
}

func TestPipeline_SequentialRequestsGetOwnID(t *testing.T) {
	p := newPipeline(t, nil, 0)

	var leaked []string
	// runs outside Tracing, after it has returned
	p.e.Pre(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if v, ok := c.Get(key).(string); ok {
				leaked = append(leaked, v)
			}
			if id, ok := tracing.IDFromContext(c.Request().Context()); ok {
				leaked = append(leaked, id)
			}
			return err
		}
	})
	p.e.GET("/api/notes/:id", func(c echo.Context) error {
		tracing.Logger(c.Request().Context()).Info().Str("note", c.Param("id")).Msg("loading note")
		return c.String(http.StatusOK, c.Param("id"))
	})

	p.do(http.MethodGet, "/api/notes/1", "")
	p.do(http.MethodGet, "/api/notes/2", "")

	assert.Empty(t, leaked, "correlation id outlived its request")

	entries := p.mem.Recent(0)
	require.Len(t, entries, 2)
	first, second := entries[1], entries[0]
	assert.NotEqual(t, first.CorrelationID, second.CorrelationID)

	var handlerLines []map[string]any
	for _, line := range p.logs.lines(t) {
		if line["message"] == "loading note" {
			handlerLines = append(handlerLines, line)
		}
	}
	require.Len(t, handlerLines, 2)
	assert.Equal(t, "1", handlerLines[0]["note"])
	assert.Equal(t, first.CorrelationID, handlerLines[0][key])
	assert.Equal(t, second.CorrelationID, handlerLines[1][key])
}

func TestPipeline_ExcludedPathIsNotCaptured(t *testing.T) {
	p := newPipeline(t, nil, 0)

	var wrapped bool
	p.e.GET("/v3/api-docs", func(c echo.Context) error {
		_, wrapped = c.Response().Writer.(*cachedbody.ResponseWriter)
		return c.String(http.StatusOK, "{}")
	})
	p.e.GET("/swagger-ui/index.html", func(c echo.Context) error {
		return c.String(http.StatusOK, "<html/>")
	})

	rec := p.do(http.MethodGet, "/v3/api-docs", "")
	assert.Equal(t, "{}", rec.Body.String())
	assert.False(t, wrapped)

	rec = p.do(http.MethodGet, "/swagger-ui/index.html", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, p.mem.Recent(0))
}

func TestPipeline_RecorderFailureDoesNotAffectResponse(t *testing.T) {
	failing := recorder.Func(func(context.Context, model.LogEntry) error {
		return errors.New("db down")
	})
	p := newPipeline(t, failing, 0)
	p.e.GET("/api/notes/1", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"id": 1})
	})

	rec := p.do(http.MethodGet, "/api/notes/1", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":1}`, rec.Body.String())
	assert.Contains(t, p.logs.String(), "failed to record http log")
	assert.Contains(t, p.logs.String(), "db down")
}

func TestPipeline_ErrorsAreRecorded(t *testing.T) {
	p := newPipeline(t, nil, 0)
	p.e.GET("/api/notes/404", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "Note not found.")
	})
	p.e.GET("/api/notes/panic", func(c echo.Context) error {
		panic("boom")
	})

	rec := p.do(http.MethodGet, "/api/notes/404", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	entries := p.mem.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, http.StatusNotFound, entries[0].StatusCode)
	assert.Equal(t, rec.Body.String(), entries[0].ResponseBody)
	assert.Contains(t, entries[0].ResponseBody, "Note not found.")

	rec = p.do(http.MethodGet, "/api/notes/panic", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	entries = p.mem.Recent(0)
	require.Len(t, entries, 2)
	assert.Equal(t, http.StatusInternalServerError, entries[0].StatusCode)
	assert.Equal(t, rec.Body.String(), entries[0].ResponseBody)
}

func TestPipeline_BodyTooLarge(t *testing.T) {
	p := newPipeline(t, nil, 4)
	var called bool
	p.e.POST("/api/notes/", func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusCreated)
	})

	rec := p.do(http.MethodPost, "/api/notes/", `{"title":"too long"}`)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, called)

	entries := p.mem.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, http.StatusRequestEntityTooLarge, entries[0].StatusCode)
	assert.Empty(t, entries[0].RequestBody)
}

func TestPipeline_TextChannel(t *testing.T) {
	p := newPipeline(t, nil, 0)
	p.e.GET("/api/notes/text", func(c echo.Context) error {
		cw, ok := c.Response().Writer.(*cachedbody.ResponseWriter)
		if !ok {
			return errors.New("response not wrapped")
		}
		c.Response().Header().Set(echo.HeaderContentType, "text/plain; charset=iso-8859-1")
		tw, err := cw.Writer()
		if err != nil {
			return err
		}
		_, err = tw.WriteString("crème brûlée")
		return err
	})

	rec := p.do(http.MethodGet, "/api/notes/text", "")

	assert.Equal(t, []byte("cr\xe8me br\xfbl\xe9e"), rec.Body.Bytes())
	entries := p.mem.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "crème brûlée", entries[0].ResponseBody)
}

func TestHTTPLogger_WithoutTracingUsesUnknownID(t *testing.T) {
	logs := &syncBuffer{}
	mem := recorder.NewMemory(1)
	e := echo.New()
	e.Use(HTTPLoggerWithConfig(HTTPLoggerConfig{
		TracingKey: key,
		Recorder:   mem,
		Logger:     zerolog.New(logs),
	}))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	entries := mem.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, tracing.UnknownID, entries[0].CorrelationID)
	assert.Contains(t, logs.String(), `"level":"error"`)
}

func TestHTTPLoggerConfig_InvalidPattern(t *testing.T) {
	_, err := HTTPLoggerConfig{ExcludedPaths: []string{"("}}.ToMiddleware()
	assert.Error(t, err)
	assert.Panics(t, func() { HTTPLoggerWithConfig(HTTPLoggerConfig{ExcludedPaths: []string{"("}}) })
}

func TestNewRelic_NilAppPassesThrough(t *testing.T) {
	var called bool
	next := func(echo.Context) error { called = true; return nil }
	h := NewRelic(nil, key)(next)

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	require.NoError(t, h(c))
	assert.True(t, called)
}

func TestPipeline_AbortedHandlerIsRecorded(t *testing.T) {
	p := newPipeline(t, nil, 0)
	p.e.GET("/api/notes/stream", func(c echo.Context) error {
		if err := c.String(http.StatusOK, "partial"); err != nil {
			return err
		}
		panic(http.ErrAbortHandler)
	})

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		p.do(http.MethodGet, "/api/notes/stream", "")
	})

	entries := p.mem.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, http.StatusOK, entries[0].StatusCode)
	assert.Equal(t, "partial", entries[0].ResponseBody)
	assert.Len(t, entries[0].CorrelationID, 32)
}

func TestHTTPLogger_PanicWithoutRecoverIsRecorded(t *testing.T) {
	mem := recorder.NewMemory(1)
	e := echo.New()
	e.Use(Tracing(key, zerolog.Nop()))
	e.Use(HTTPLoggerWithConfig(HTTPLoggerConfig{TracingKey: key, Recorder: mem, Logger: zerolog.Nop()}))
	e.GET("/", func(c echo.Context) error { panic("boom") })

	assert.PanicsWithValue(t, "boom", func() {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})

	entries := mem.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, http.StatusInternalServerError, entries[0].StatusCode)
}

func TestPipeline_ClientAddressIgnoresForwardedHeaders(t *testing.T) {
	p := newPipeline(t, nil, 0)
	p.e.GET("/api/notes/1", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/notes/1", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set(echo.HeaderXForwardedFor, "6.6.6.6")
	req.Header.Set(echo.HeaderXRealIP, "6.6.6.7")
	p.e.ServeHTTP(httptest.NewRecorder(), req)

	entries := p.mem.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "192.0.2.1", entries[0].ClientAddress)
}

func TestPipeline_ClientAddressFromTrustedProxy(t *testing.T) {
	p := newPipeline(t, nil, 0)
	p.e.IPExtractor = echo.ExtractIPFromXFFHeader()
	p.e.GET("/api/notes/1", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	spoofed := httptest.NewRequest(http.MethodGet, "/api/notes/1", nil)
	spoofed.RemoteAddr = "192.0.2.1:1234"
	spoofed.Header.Set(echo.HeaderXForwardedFor, "6.6.6.6")
	p.e.ServeHTTP(httptest.NewRecorder(), spoofed)

	proxied := httptest.NewRequest(http.MethodGet, "/api/notes/1", nil)
	proxied.RemoteAddr = "10.0.0.5:1234"
	proxied.Header.Set(echo.HeaderXForwardedFor, "203.0.113.7")
	p.e.ServeHTTP(httptest.NewRecorder(), proxied)

	entries := p.mem.Recent(0)
	require.Len(t, entries, 2)
	assert.Equal(t, "203.0.113.7", entries[0].ClientAddress)
	assert.Equal(t, "192.0.2.1", entries[1].ClientAddress)
}

func TestPipeline_ErrorAfterTextWriteKeepsBody(t *testing.T) {
	p := newPipeline(t, nil, 0)
	p.e.GET("/api/notes/text", func(c echo.Context) error {
		cw := c.Response().Writer.(*cachedbody.ResponseWriter)
		tw, err := cw.Writer()
		if err != nil {
			return err
		}
		if _, err := tw.WriteString("partial text"); err != nil {
			return err
		}
		return errors.New("late failure")
	})

	rec := p.do(http.MethodGet, "/api/notes/text", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial text", rec.Body.String())
	entries := p.mem.Recent(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "partial text", entries[0].ResponseBody)
	assert.Contains(t, p.logs.String(), "handler failed after response started")
}
