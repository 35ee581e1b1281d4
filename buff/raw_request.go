package buff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
)

// Unbounded is the body limit used when a request declares no length and
// the decoder runs with LengthUnbounded.
const Unbounded int64 = -1

// LengthPolicy decides what an absent Content-Length means.
type LengthPolicy int

const (
	// LengthZero treats a request without Content-Length as bodyless.
	LengthZero LengthPolicy = iota
	// LengthUnbounded reads the body until the peer stops sending. The
	// connection cannot be reused afterwards.
	LengthUnbounded
)

// Header is a name/value pair aliasing the connection buffer.
type Header struct {
	Name  []byte
	Value []byte
}

// RawRequest is a read-only view of a decoded request line and header
// block. Its slices point into the connection buffer and stay valid until
// Release (or the derived BodyReader's Close).
type RawRequest struct {
	method  []byte
	path    []byte
	minor   uint8
	headers []Header

	buf      *ConnBuffer
	sock     io.Reader
	policy   LengthPolicy
	chunk    int
	consumed bool
}

func (r *RawRequest) Method() string { return internMethod(r.method) }

func (r *RawRequest) RawMethod() []byte { return r.method }

func (r *RawRequest) Path() string { return string(r.path) }

func (r *RawRequest) RawPath() []byte { return r.path }

// Version is the minor HTTP/1 version: 0 or 1.
func (r *RawRequest) Version() uint8 { return r.minor }

func (r *RawRequest) Headers() []Header { return r.headers }

// Header returns the first value whose name matches, ignoring ASCII case.
func (r *RawRequest) Header(name string) ([]byte, bool) {
	for _, h := range r.headers {
		if asciiEqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return nil, false
}

// ContentLength returns the declared body length. Without the header the
// result depends on the length policy: 0, or Unbounded.
func (r *RawRequest) ContentLength() (int64, error) {
	var (
		n     int64
		found []byte
	)
	for _, h := range r.headers {
		if !asciiEqualFold(h.Name, "Content-Length") {
			continue
		}
		if found != nil {
			if !bytes.Equal(found, h.Value) {
				return 0, &Error{Kind: KindContentLength, Reason: "conflicting values", Err: ErrInvalidContentLength}
			}
			continue
		}
		v, ok := parseLength(h.Value)
		if !ok {
			return 0, &Error{Kind: KindContentLength, Reason: fmt.Sprintf("%q", h.Value), Err: ErrInvalidContentLength}
		}
		found, n = h.Value, v
	}
	if found != nil {
		return n, nil
	}
	if r.policy == LengthUnbounded {
		return Unbounded, nil
	}
	return 0, nil
}

// JSONBody decodes the body bytes already sitting in the buffer without
// consuming them. It fails when the declared body has not fully arrived.
func (r *RawRequest) JSONBody(v any) error {
	n, err := r.ContentLength()
	if err != nil {
		return err
	}
	data := r.buf.Unread()
	if n != Unbounded {
		if int64(len(data)) < n {
			return &Error{Kind: KindBodyDecode, Reason: "body not fully buffered", Err: io.ErrUnexpectedEOF}
		}
		data = data[:n]
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &Error{Kind: KindBodyDecode, Err: err}
	}
	return nil
}

// Body hands the buffer and socket over to a BodyReader bounded by the
// declared length. The view must not be used to read the body afterwards.
func (r *RawRequest) Body() (*BodyReader, error) {
	if r.consumed {
		return nil, ErrBodyConsumed
	}
	n, err := r.ContentLength()
	if err != nil {
		return nil, err
	}
	r.consumed = true
	br := newBodyReader(r.buf, r.sock, n)
	if r.chunk > 0 {
		br.chunk = r.chunk
	}
	return br, nil
}

// Release ends the view's hold on the buffer.
func (r *RawRequest) Release() {
	if r.buf != nil {
		r.buf.release()
	}
}

func (r *RawRequest) String() string {
	return fmt.Sprintf("<HTTP Request %s %s>", r.method, r.path)
}

func parseLength(v []byte) (int64, bool) {
	if len(v) == 0 {
		return 0, false
	}
	var n int64
	for _, c := range v {
		if c < '0' || c > '9' {
			return 0, false
		}
		d := int64(c - '0')
		if n > (math.MaxInt64-d)/10 {
			return 0, false
		}
		n = n*10 + d
	}
	return n, true
}

func internMethod(b []byte) string {
	switch string(b) {
	case http.MethodGet:
		return http.MethodGet
	case http.MethodPost:
		return http.MethodPost
	case http.MethodPut:
		return http.MethodPut
	case http.MethodDelete:
		return http.MethodDelete
	case http.MethodHead:
		return http.MethodHead
	case http.MethodPatch:
		return http.MethodPatch
	case http.MethodOptions:
		return http.MethodOptions
	case http.MethodConnect:
		return http.MethodConnect
	case http.MethodTrace:
		return http.MethodTrace
	}
	return string(b)
}

// asciiEqualFold compares without Unicode folding, so bytes outside ASCII
// never match an ASCII name.
func asciiEqualFold(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := 0; i < len(b); i++ {
		if lower(b[i]) != lower(s[i]) {
			return false
		}
	}
	return true
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}
