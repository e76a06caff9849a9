// Package cachedbody wraps the single-pass body streams of an HTTP exchange
// so they can be observed without starving the real consumer.
//
// Request buffers the inbound body up front and hands out independent
// readers. ResponseWriter passes every byte through to the client while
// keeping a copy.
package cachedbody

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ReadError reports that the inbound body could not be buffered. The
// request cannot be processed in that case.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read request body: %v", e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// TooLarge reports whether the body exceeded the configured limit.
func (e *ReadError) TooLarge() bool {
	var mbe *http.MaxBytesError
	return errors.As(e.Err, &mbe)
}

// Request holds a fully buffered copy of an inbound request body.
type Request struct {
	req     *http.Request
	body    []byte
	charset string
}

// NewRequest drains r.Body into memory and closes it. limit caps the number
// of bytes read; 0 means no cap. On failure no partial body is kept.
func NewRequest(w http.ResponseWriter, r *http.Request, limit int64) (*Request, error) {
	cr := &Request{
		req:     r,
		charset: charsetOf(r.Header.Get("Content-Type")),
	}
	if r.Body == nil || r.Body == http.NoBody {
		cr.body = []byte{}
		return cr, nil
	}

	src := r.Body
	if limit > 0 {
		src = http.MaxBytesReader(w, src, limit)
	}
	defer src.Close()

	body, err := io.ReadAll(src)
	if err != nil {
		return nil, &ReadError{Err: err}
	}
	if body == nil {
		body = []byte{}
	}
	cr.body = body
	return cr, nil
}

// Reader returns a new reader positioned at the start of the body. Readers
// never interfere with each other.
func (r *Request) Reader() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(r.body))
}

// Request returns a shallow copy of the original request whose Body is a
// fresh reader and whose GetBody hands out more of them.
func (r *Request) Request() *http.Request {
	out := r.req.WithContext(r.req.Context())
	out.Body = r.Reader()
	out.GetBody = func() (io.ReadCloser, error) {
		return r.Reader(), nil
	}
	out.ContentLength = int64(len(r.body))
	return out
}

// Bytes returns the buffered body. Callers must not modify it.
func (r *Request) Bytes() []byte {
	return r.body
}

// Text returns the body decoded with the request's declared charset.
func (r *Request) Text() string {
	return decode(r.body, r.charset)
}
