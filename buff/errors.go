package buff

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	crlf = "\r\n"
)

// ErrIncomplete reports that the buffer does not yet hold a full frame.
// It is not a failure: read more bytes and decode again.
var ErrIncomplete = errors.New("incomplete http request")

// Malformed request causes.
var (
	ErrInvalidMethod      = errors.New("invalid request method")
	ErrInvalidPath        = errors.New("invalid request path")
	ErrInvalidVersion     = errors.New("invalid http version")
	ErrInvalidHeaderName  = errors.New("invalid header name")
	ErrInvalidHeaderValue = errors.New("invalid header value")
	ErrInvalidNewline     = errors.New("invalid line terminator")
	ErrTooManyHeaders     = errors.New("too many headers")
	ErrHeaderTooLarge     = errors.New("request header too large")
)

var (
	ErrInvalidContentLength = errors.New("invalid Content-Length")
	ErrBodyConsumed         = errors.New("request body already consumed")
	ErrUnboundedBody        = errors.New("request body has no declared length")
	ErrBufferHeld           = errors.New("connection buffer is held by a request")
)

// ErrorKind classifies failures of the decode and body paths.
type ErrorKind int

const (
	KindMalformed ErrorKind = iota + 1
	KindContentLength
	KindSocketIO
	KindBodyDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed request"
	case KindContentLength:
		return "content length"
	case KindSocketIO:
		return "socket io"
	case KindBodyDecode:
		return "body decode"
	default:
		return "unknown"
	}
}

// Error carries the kind of a failure and the cause behind it.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func malformed(cause error, reason string) *Error {
	return &Error{Kind: KindMalformed, Reason: reason, Err: cause}
}

func socketError(err error) *Error {
	return &Error{Kind: KindSocketIO, Err: err}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// StatusCode maps a decode failure to the response status the connection
// loop answers with before closing.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrTooManyHeaders), errors.Is(err, ErrHeaderTooLarge):
		return http.StatusRequestHeaderFieldsTooLarge
	case IsKind(err, KindMalformed), IsKind(err, KindContentLength), IsKind(err, KindBodyDecode):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
