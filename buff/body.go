package buff

import (
	"errors"
	"fmt"
	"io"
	"math"
)

const maxEmptyReads = 100

// BodyReader streams a request body out of the connection buffer, reading
// further from the socket only while the declared length is not reached.
// Bytes past the limit are left in the buffer for the next request.
type BodyReader struct {
	buf   *ConnBuffer
	sock  io.Reader
	limit int64
	total int64
	chunk int

	err    error
	closed bool
}

func newBodyReader(buf *ConnBuffer, sock io.Reader, limit int64) *BodyReader {
	return &BodyReader{buf: buf, sock: sock, limit: limit, chunk: defaultReadChunk}
}

// Limit is the declared body length, or Unbounded.
func (br *BodyReader) Limit() int64 { return br.limit }

// Total is the number of body bytes delivered so far.
func (br *BodyReader) Total() int64 { return br.total }

// Remaining is the number of body bytes not yet delivered, or Unbounded.
func (br *BodyReader) Remaining() int64 {
	if br.limit == Unbounded {
		return Unbounded
	}
	return br.limit - br.total
}

func (br *BodyReader) done() bool {
	return br.limit != Unbounded && br.total >= br.limit
}

func (br *BodyReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		if br.closed {
			return 0, ErrBodyConsumed
		}
		return 0, nil
	}
	data, err := br.Fill()
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	br.Consume(n)
	return n, nil
}

// Fill returns the unread body bytes currently buffered, clipped to the
// limit, without consuming them. It reads from the socket only when nothing
// is buffered. At the end of the body it returns io.EOF.
func (br *BodyReader) Fill() ([]byte, error) {
	if br.closed {
		return nil, ErrBodyConsumed
	}
	if br.done() {
		return nil, io.EOF
	}
	for empty := 0; br.buf.Buffered() == 0; {
		if br.err != nil {
			return nil, br.err
		}
		n, err := br.buf.FillFrom(br.sock, br.chunk)
		if err != nil {
			br.err = br.socketErr(err)
			continue
		}
		if n == 0 {
			if empty++; empty >= maxEmptyReads {
				br.err = socketError(io.ErrNoProgress)
			}
		}
	}
	data := br.buf.Unread()
	if rem := br.remaining(); int64(len(data)) > rem {
		data = data[:rem]
	}
	return data, nil
}

// Consume discards n of the bytes returned by Fill and counts them as
// delivered.
func (br *BodyReader) Consume(n int) {
	avail := int64(br.buf.Buffered())
	if rem := br.remaining(); avail > rem {
		avail = rem
	}
	if int64(n) > avail {
		n = int(avail)
	}
	if n <= 0 {
		return
	}
	br.buf.Advance(n)
	br.total += int64(n)
}

func (br *BodyReader) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for {
		data, err := br.Fill()
		if errors.Is(err, io.EOF) {
			return written, nil
		}
		if err != nil {
			return written, err
		}
		n, werr := w.Write(data)
		br.Consume(n)
		written += int64(n)
		if werr != nil {
			return written, werr
		}
	}
}

// Close discards whatever is left of a bounded body so the connection can
// serve the next request, and releases the buffer. An unbounded body cannot
// be skipped; Close then reports ErrUnboundedBody and the connection has to
// be dropped.
func (br *BodyReader) Close() error {
	if br.closed {
		return nil
	}
	defer func() {
		br.closed = true
		br.buf.release()
	}()
	if br.limit == Unbounded {
		if errors.Is(br.err, io.EOF) {
			return nil
		}
		return ErrUnboundedBody
	}
	for !br.done() {
		data, err := br.Fill()
		if err != nil {
			return fmt.Errorf("drain body: %w", err)
		}
		br.Consume(len(data))
	}
	return nil
}

func (br *BodyReader) remaining() int64 {
	if br.limit == Unbounded {
		return math.MaxInt64
	}
	return br.limit - br.total
}

func (br *BodyReader) socketErr(err error) error {
	if errors.Is(err, io.EOF) {
		if br.limit == Unbounded {
			return io.EOF
		}
		return socketError(io.ErrUnexpectedEOF)
	}
	return socketError(err)
}

func (br *BodyReader) String() string { return "<HTTP BodyReader>" }
