package buff

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/bytebufferpool"
)

var respPool = sync.Pool{
	New: func() any {
		return &responseWriter{
			header: http.Header{},
		}
	},
}

// responseWriter buffers a handler's response so the connection loop can
// frame it with Content-Length and the keep-alive decision.
type responseWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        *bytebufferpool.ByteBuffer
	serverHdr   string
}

func acquireResponseWriter(pool *bytebufferpool.Pool, serverHdr string) *responseWriter {
	w := respPool.Get().(*responseWriter)
	clear(w.header)
	w.status = 0
	w.wroteHeader = false
	w.serverHdr = serverHdr
	w.body = pool.Get()
	w.body.Reset()
	return w
}

func releaseResponseWriter(pool *bytebufferpool.Pool, w *responseWriter) {
	if w.body != nil {
		pool.Put(w.body)
		w.body = nil
	}
	w.serverHdr = ""
	respPool.Put(w)
}

func (w *responseWriter) Header() http.Header { return w.header }

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.status = code
	w.wroteHeader = true
}

// finalize serialises the response into out and reports whether the
// connection has to be closed after it is sent.
func (w *responseWriter) finalize(minor uint8, head, reqClose bool, out *bytebufferpool.ByteBuffer) bool {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	hdr := w.header
	body := w.body.Bytes()

	if _, ok := hdr["Server"]; !ok && w.serverHdr != "" {
		hdr.Set("Server", w.serverHdr)
	}
	if _, ok := hdr["Date"]; !ok {
		hdr.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	}
	hdr.Set("Content-Length", strconv.Itoa(len(body)))

	shouldClose := reqClose || hasConnectionToken(hdr.Values("Connection"), "close")
	if shouldClose {
		hdr.Set("Connection", "close")
	} else if minor == 0 {
		hdr.Set("Connection", "keep-alive")
	}

	out.Reset()
	fmt.Fprintf(out, "HTTP/1.%d %d %s%s", minor, status, http.StatusText(status), crlf)
	writeHeaderLines(out, hdr)
	out.WriteString(crlf)
	if !head {
		out.Write(body)
	}
	return shouldClose
}

func writeHeaderLines(buf *bytebufferpool.ByteBuffer, hdr http.Header) {
	for k, vv := range hdr {
		for _, v := range vv {
			buf.WriteString(k)
			buf.WriteString(": ")
			buf.WriteString(v)
			buf.WriteString(crlf)
		}
	}
}

func hasConnectionToken(values []string, token string) bool {
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(p), token) {
				return true
			}
		}
	}
	return false
}

// writeError answers a request the loop could not decode. The connection
// is always closed afterwards.
func writeError(w io.Writer, pool *bytebufferpool.Pool, status int, msg, serverHdr string) error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	buf := pool.Get()
	defer pool.Put(buf)
	buf.Reset()
	fmt.Fprintf(buf, "HTTP/1.1 %d %s%s", status, http.StatusText(status), crlf)
	if serverHdr != "" {
		fmt.Fprintf(buf, "Server: %s%s", serverHdr, crlf)
	}
	fmt.Fprintf(buf, "Content-Type: text/plain; charset=utf-8%s", crlf)
	fmt.Fprintf(buf, "Content-Length: %d%s", len(msg)+1, crlf)
	buf.WriteString("Connection: close\r\n")
	buf.WriteString(crlf)
	buf.WriteString(msg)
	buf.WriteString("\n")
	_, err := w.Write(buf.Bytes())
	return err
}

type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
	bytes  int
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.wrote {
		return
	}
	sw.status = code
	sw.wrote = true
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(p []byte) (int, error) {
	if !sw.wrote {
		sw.WriteHeader(http.StatusOK)
	}
	n, err := sw.ResponseWriter.Write(p)
	sw.bytes += n
	return n, err
}

func (sw *statusWriter) Status() int {
	if sw.wrote {
		return sw.status
	}
	return http.StatusOK
}

func (sw *statusWriter) BytesWritten() int { return sw.bytes }
