package buff

import (
	"encoding/json"
	"errors"
	"io"
)

// Request is the application's view of a decoded request: the raw view
// plus the parameters filled in by the router and the query parser.
type Request struct {
	Params    map[string]string
	URLParams map[string]string

	raw  *RawRequest
	body *BodyReader
}

func NewRequest(raw *RawRequest) *Request {
	return &Request{
		Params:    map[string]string{},
		URLParams: map[string]string{},
		raw:       raw,
	}
}

func (r *Request) Method() string { return r.raw.Method() }

func (r *Request) Path() string { return r.raw.Path() }

func (r *Request) Version() uint8 { return r.raw.Version() }

func (r *Request) Headers() []Header { return r.raw.Headers() }

func (r *Request) Header(name string) ([]byte, bool) { return r.raw.Header(name) }

func (r *Request) Raw() *RawRequest { return r.raw }

// Parameter looks up a query parameter.
func (r *Request) Parameter(name string) (string, bool) {
	v, ok := r.Params[name]
	return v, ok
}

// URLParameter looks up a path parameter captured by the router.
func (r *Request) URLParameter(name string) (string, bool) {
	v, ok := r.URLParams[name]
	return v, ok
}

// KeepAlive reports whether the client sent "Connection: keep-alive".
func (r *Request) KeepAlive() bool {
	for _, h := range r.raw.Headers() {
		if asciiEqualFold(h.Name, "Connection") && asciiEqualFold(h.Value, "keep-alive") {
			return true
		}
	}
	return false
}

// Body returns the streaming body. It can be taken once.
func (r *Request) Body() (*BodyReader, error) {
	if r.body != nil {
		return nil, ErrBodyConsumed
	}
	body, err := r.raw.Body()
	if err != nil {
		return nil, err
	}
	r.body = body
	return body, nil
}

// JSONBody streams the body through a JSON decoder, consuming it.
func (r *Request) JSONBody(v any) error {
	body, err := r.Body()
	if err != nil {
		return err
	}
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var e *Error
		if errors.As(err, &e) {
			return err
		}
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return &Error{Kind: KindBodyDecode, Err: err}
	}
	return nil
}

// BufferedJSON decodes a body that already sits in the buffer, leaving it
// unread.
func (r *Request) BufferedJSON(v any) error { return r.raw.JSONBody(v) }

// finish closes the body if the handler took it, or drains it through a
// fresh reader otherwise, then releases the view.
func (r *Request) finish() error {
	defer r.raw.Release()
	if r.body != nil {
		return r.body.Close()
	}
	body, err := r.raw.Body()
	if err != nil {
		return err
	}
	r.body = body
	return body.Close()
}
