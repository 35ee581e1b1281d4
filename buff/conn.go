package buff

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
)

var errConnPanic = errors.New("panic serving connection")

// connServer runs the per-connection request loop. It is shared by both
// transports; everything it touches per connection lives on the stack of
// the goroutine running serve.
type connServer struct {
	router  *Router
	opts    *options
	bufPool *bytebufferpool.Pool
	log     *zap.Logger
}

// serve decodes and answers requests from sock until the peer closes, a
// request cannot be decoded, or a response closes the connection. A clean
// end of the connection returns nil.
//
// A panic that escapes the handler chain, e.g. from a middleware, ends only
// this connection.
func (s *connServer) serve(ctx context.Context, sock io.Reader, out io.Writer, remote net.Addr) (err error) {
	idle, _ := sock.(idleNotifier)
	sock = withReadTimeout(sock, s.opts.readTimeout)
	buf := NewConnBuffer(s.bufPool)
	defer buf.Free()
	dec := NewDecoder(s.opts.maxHeaderBytes, s.opts.lengthPolicy)
	dec.SetReadChunk(s.opts.readChunk)
	log := s.log.With(zap.String("remote", addrString(remote)))
	defer func() {
		if p := recover(); p != nil {
			log.Error("connection panic", zap.Any("panic", p))
			err = fmt.Errorf("%w: %v", errConnPanic, p)
		}
	}()

	for ctx.Err() == nil {
		raw, _, err := dec.Decode(buf, sock)
		if errors.Is(err, ErrIncomplete) {
			empty := buf.Buffered() == 0
			if idle != nil && empty {
				idle.setIdle(true)
			}
			n, rerr := buf.FillFrom(sock, s.opts.readChunk)
			if idle != nil && empty {
				idle.setIdle(false)
			}
			if n > 0 || rerr == nil {
				continue
			}
			if errors.Is(rerr, io.EOF) || (empty && idleEnd(ctx, rerr)) {
				if buf.Buffered() > 0 {
					log.Debug("peer closed mid-request", zap.Int("buffered", buf.Buffered()))
				}
				return nil
			}
			return socketError(rerr)
		}
		if err != nil {
			log.Debug("decode request", zap.Error(err))
			_ = writeError(out, s.bufPool, StatusCode(err), "", s.opts.serverHeader)
			return err
		}

		keep, err := s.handle(raw, out, log)
		if err != nil || !keep {
			return err
		}
		if err := buf.Reset(); err != nil {
			return err
		}
	}
	return nil
}

// handle answers one decoded request and reports whether the connection
// may carry another one.
func (s *connServer) handle(raw *RawRequest, out io.Writer, log *zap.Logger) (bool, error) {
	defer raw.Release()

	limit, err := raw.ContentLength()
	if err != nil {
		log.Debug("content length", zap.Error(err))
		_ = writeError(out, s.bufPool, StatusCode(err), "", s.opts.serverHeader)
		return false, err
	}

	req := NewRequest(raw)
	w := acquireResponseWriter(s.bufPool, s.opts.serverHeader)
	defer releaseResponseWriter(s.bufPool, w)

	s.router.Serve(w, req)

	closeAfter := wantsClose(req) || limit == Unbounded
	if err := req.finish(); err != nil {
		if IsKind(err, KindSocketIO) {
			return false, err
		}
		log.Debug("finish body", zap.Error(err))
		closeAfter = true
	}

	resp := s.bufPool.Get()
	defer s.bufPool.Put(resp)
	closeAfter = w.finalize(raw.Version(), raw.Method() == http.MethodHead, closeAfter, resp)
	if _, err := out.Write(resp.Bytes()); err != nil {
		return false, err
	}
	return !closeAfter, nil
}

// wantsClose applies the HTTP/1 persistence rules: 1.1 stays open unless
// told to close, 1.0 closes unless told to keep alive.
func wantsClose(req *Request) bool {
	if headerHasToken(req.Headers(), "Connection", "close") {
		return true
	}
	if req.Version() == 0 {
		return !req.KeepAlive()
	}
	return false
}

func headerHasToken(headers []Header, name, token string) bool {
	for _, h := range headers {
		if !asciiEqualFold(h.Name, name) {
			continue
		}
		for _, p := range bytes.Split(h.Value, []byte{','}) {
			if asciiEqualFold(bytes.TrimSpace(p), token) {
				return true
			}
		}
	}
	return false
}

// idleEnd reports a read between requests that failed because the server
// is shutting down or the idle deadline passed.
func idleEnd(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded)
}

type idleNotifier interface {
	setIdle(idle bool)
}

type deadlineReader interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// timeoutReader arms a fresh read deadline before every read, so a stalled
// peer fails the blocked read instead of pinning the goroutine.
type timeoutReader struct {
	r deadlineReader
	d time.Duration
}

func (t timeoutReader) Read(p []byte) (int, error) {
	if err := t.r.SetReadDeadline(time.Now().Add(t.d)); err != nil {
		return 0, err
	}
	return t.r.Read(p)
}

func withReadTimeout(r io.Reader, d time.Duration) io.Reader {
	if d <= 0 {
		return r
	}
	if dr, ok := r.(deadlineReader); ok {
		return timeoutReader{r: dr, d: d}
	}
	return r
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
