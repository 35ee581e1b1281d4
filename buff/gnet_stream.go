package buff

import (
	"io"
	"os"
	"sync"
	"time"

	gnet "github.com/panjf2000/gnet/v2"
	"github.com/valyala/bytebufferpool"
)

const maxStreamPending = 64 << 10

// gnetStream bridges a gnet connection to the blocking reader the request
// loop expects. The event loop feeds inbound bytes in; a worker goroutine
// reads them out, blocking until data arrives, the connection closes or the
// read deadline passes. Writes are handed back to the event loop and wait
// until they are flushed.
type gnetStream struct {
	c gnet.Conn

	mu       sync.Mutex
	pending  *bytebufferpool.ByteBuffer
	off      int
	err      error
	paused   bool
	deadline time.Time

	notify chan struct{}
	done   chan struct{}
	once   sync.Once
}

func newGNetStream(c gnet.Conn) *gnetStream {
	return &gnetStream{
		c:       c,
		pending: &bytebufferpool.ByteBuffer{},
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// space is how many bytes feed may accept before the stream pushes back.
func (s *gnetStream) space() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maxStreamPending - (s.pending.Len() - s.off)
}

// feed copies data in from the event loop. When paused is set the event
// loop left bytes in its inbound buffer and wants a wake-up once the reader
// has made room.
func (s *gnetStream) feed(data []byte, paused bool) {
	s.mu.Lock()
	if s.off > 0 {
		n := copy(s.pending.B, s.pending.B[s.off:])
		s.pending.B = s.pending.B[:n]
		s.off = 0
	}
	_, _ = s.pending.Write(data)
	s.paused = paused
	s.mu.Unlock()
	s.signal()
}

func (s *gnetStream) closeWithError(err error) {
	if err == nil {
		err = io.EOF
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
	s.signal()
}

func (s *gnetStream) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *gnetStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		s.mu.Lock()
		if n := s.pending.Len() - s.off; n > 0 {
			n = copy(p, s.pending.B[s.off:])
			s.off += n
			wake := s.paused && s.pending.Len()-s.off < maxStreamPending/2
			if wake {
				s.paused = false
			}
			s.mu.Unlock()
			if wake {
				_ = s.c.Wake(nil)
			}
			return n, nil
		}
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return 0, err
		}
		deadline := s.deadline
		s.mu.Unlock()

		if deadline.IsZero() {
			<-s.notify
			continue
		}
		d := time.Until(deadline)
		if d <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		t := time.NewTimer(d)
		select {
		case <-s.notify:
			t.Stop()
		case <-t.C:
			return 0, os.ErrDeadlineExceeded
		}
	}
}

func (s *gnetStream) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	s.deadline = t
	s.mu.Unlock()
	s.signal()
	return nil
}

func (s *gnetStream) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	flushed := make(chan error, 1)
	err := s.c.AsyncWrite(buf, func(_ gnet.Conn, err error) error {
		flushed <- err
		return nil
	})
	if err != nil {
		return 0, err
	}
	select {
	case err = <-flushed:
	case <-s.done:
		return 0, io.ErrClosedPipe
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}
