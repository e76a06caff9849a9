package cachedbody

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"unicode/utf8"

	"golang.org/x/text/encoding"
)

// ErrWriterSelected is returned when a handler asks for the byte channel
// after the text channel was handed out, or the other way round.
var ErrWriterSelected = errors.New("cachedbody: writer already selected")

// textBufferSize is how much encoded text the text channel holds before it
// pushes bytes to the client on its own.
const textBufferSize = 4096

// channel is the output view a ResponseWriter committed to. It is chosen by
// the first write or accessor call and never changes afterwards.
type channel uint8

const (
	channelNone channel = iota
	channelStream
	channelText
)

// ResponseWriter tees everything written to the client into a capture
// buffer. It must not be shared between requests.
type ResponseWriter struct {
	http.ResponseWriter

	capture     bytes.Buffer
	status      int
	wroteHeader bool
	selected    channel
	text        *TextWriter
}

// NewResponseWriter wraps w.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *ResponseWriter) selectChannel(c channel) error {
	if w.selected != channelNone && w.selected != c {
		return ErrWriterSelected
	}
	w.selected = c
	return nil
}

// WriteHeader records the status and forwards it. Only the first call counts.
func (w *ResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

// Write is the byte channel.
func (w *ResponseWriter) Write(p []byte) (int, error) {
	if err := w.selectChannel(channelStream); err != nil {
		return 0, err
	}
	return w.write(p)
}

func (w *ResponseWriter) write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	n, err := w.ResponseWriter.Write(p)
	w.capture.Write(p[:n])
	return n, err
}

// OutputStream returns the byte channel. It fails once the text channel is
// in use.
func (w *ResponseWriter) OutputStream() (io.Writer, error) {
	if err := w.selectChannel(channelStream); err != nil {
		return nil, err
	}
	return streamWriter{w}, nil
}

// Writer returns the text channel, encoding with the charset declared in the
// response Content-Type at the time of the first call. It fails once the byte
// channel is in use.
func (w *ResponseWriter) Writer() (*TextWriter, error) {
	if err := w.selectChannel(channelText); err != nil {
		return nil, err
	}
	if w.text == nil {
		w.text = &TextWriter{
			sink: w,
			enc:  lookup(charsetOf(w.Header().Get("Content-Type"))),
		}
	}
	return w.text, nil
}

// FlushBuffer pushes text still held by the text channel to the client.
// It does not flush the underlying connection.
func (w *ResponseWriter) FlushBuffer() error {
	if w.text != nil {
		return w.text.Flush()
	}
	return nil
}

// Flush implements http.Flusher.
func (w *ResponseWriter) Flush() {
	_ = w.FlushBuffer()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *ResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Committed reports whether the response has started: a status or body
// byte was sent, or a channel was handed out. Nothing else may be written
// through the byte channel after the text channel was chosen.
func (w *ResponseWriter) Committed() bool {
	return w.wroteHeader || w.selected != channelNone
}

// Status returns the status sent to the client, 200 if none was set.
func (w *ResponseWriter) Status() int {
	return w.status
}

// Body returns the bytes sent so far. Call FlushBuffer first.
func (w *ResponseWriter) Body() []byte {
	return w.capture.Bytes()
}

// Text returns Body decoded with the response charset.
func (w *ResponseWriter) Text() string {
	return decode(w.capture.Bytes(), charsetOf(w.Header().Get("Content-Type")))
}

type streamWriter struct{ w *ResponseWriter }

func (s streamWriter) Write(p []byte) (int, error) { return s.w.write(p) }

// TextWriter is the character channel of a ResponseWriter. Input is UTF-8
// text; output is encoded with the response charset.
type TextWriter struct {
	sink    *ResponseWriter
	enc     encoding.Encoding
	pending []byte
}

// Write queues UTF-8 text. It is sent once enough has accumulated or on Flush.
func (t *TextWriter) Write(p []byte) (int, error) {
	t.pending = append(t.pending, p...)
	if len(t.pending) >= textBufferSize {
		if err := t.drain(false); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (t *TextWriter) WriteString(s string) (int, error) {
	return t.Write([]byte(s))
}

// Flush sends everything queued, including a trailing partial rune.
func (t *TextWriter) Flush() error {
	return t.drain(true)
}

// drain encodes and sends pending text. Unless final, an incomplete rune at
// the end stays queued for the next write.
func (t *TextWriter) drain(final bool) error {
	n := len(t.pending)
	if !final {
		n = completeRunes(t.pending)
	}
	if n == 0 {
		return nil
	}
	chunk := t.pending[:n]
	if t.enc != nil {
		encoded, err := encoding.ReplaceUnsupported(t.enc.NewEncoder()).Bytes(chunk)
		if err != nil {
			return err
		}
		chunk = encoded
	}
	if _, err := t.sink.write(chunk); err != nil {
		return err
	}
	t.pending = append(t.pending[:0], t.pending[n:]...)
	return nil
}

// completeRunes returns the length of the longest prefix of p that does not
// end inside a multi-byte UTF-8 sequence.
func completeRunes(p []byte) int {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if utf8.RuneStart(p[i]) {
			if utf8.FullRune(p[i:]) {
				return len(p)
			}
			return i
		}
	}
	return len(p)
}
