package buff

import (
	"io"

	"github.com/valyala/bytebufferpool"
)

const defaultReadChunk = 4 << 10

// ConnBuffer is the per-connection read buffer. Bytes before the read
// offset are consumed; bytes between the offset and the filled length are
// unread; the tail up to capacity is writable.
//
// After a successful decode the buffer is held: the parsed views alias the
// bytes in front of pin, so those stay put until the request is released.
// Consumed bytes after pin are reclaimed whenever more room is needed, and
// growth copies only the unread bytes into fresh storage, leaving the old
// array to the views. A streamed body therefore never accumulates.
type ConnBuffer struct {
	pool *bytebufferpool.Pool
	bb   *bytebufferpool.ByteBuffer
	r    int
	pin  int
	held bool
}

func NewConnBuffer(pool *bytebufferpool.Pool) *ConnBuffer {
	if pool == nil {
		pool = &bytebufferpool.Pool{}
	}
	bb := pool.Get()
	bb.Reset()
	return &ConnBuffer{pool: pool, bb: bb}
}

// Reserve makes sure at least n writable bytes follow the filled region.
// It may move the unread bytes, so slices from Unread are only stable
// while nothing is reserved.
func (b *ConnBuffer) Reserve(n int) {
	buf := b.bb.B
	if cap(buf)-len(buf) >= n {
		return
	}
	live := len(buf) - b.r
	if b.r > b.pin && cap(buf)-b.pin-live >= n {
		m := copy(buf[b.pin:], buf[b.r:])
		b.bb.B = buf[:b.pin+m]
		b.r = b.pin
		return
	}
	size := 2 * live
	if size < live+n {
		size = live + n
	}
	grown := make([]byte, live, size)
	copy(grown, buf[b.r:])
	b.bb.B = grown
	b.r = 0
	b.pin = 0
}

// Writable returns the uncommitted tail. Only bytes reported to Commit
// become visible.
func (b *ConnBuffer) Writable() []byte {
	buf := b.bb.B
	return buf[len(buf):cap(buf)]
}

func (b *ConnBuffer) Commit(n int) {
	buf := b.bb.B
	if n < 0 || len(buf)+n > cap(buf) {
		panic("buff: commit beyond writable region")
	}
	b.bb.B = buf[:len(buf)+n]
}

func (b *ConnBuffer) Unread() []byte { return b.bb.B[b.r:] }

func (b *ConnBuffer) Buffered() int { return len(b.bb.B) - b.r }

// Offset is the number of consumed bytes still in storage. Reset, and any
// Reserve that has to make room, reclaim them.
func (b *ConnBuffer) Offset() int { return b.r }

func (b *ConnBuffer) Advance(n int) {
	if n < 0 || n > b.Buffered() {
		panic("buff: advance beyond unread region")
	}
	b.r += n
}

// FillFrom performs exactly one read from r into freshly reserved capacity
// and commits what was read.
func (b *ConnBuffer) FillFrom(r io.Reader, chunk int) (int, error) {
	if chunk <= 0 {
		chunk = defaultReadChunk
	}
	b.Reserve(chunk)
	n, err := r.Read(b.Writable())
	if n > 0 {
		b.Commit(n)
	}
	return n, err
}

// Reset moves the unread bytes to the front and rewinds the offset, so a
// pipelined request starts at position zero.
func (b *ConnBuffer) Reset() error {
	if b.held {
		return ErrBufferHeld
	}
	if b.r == 0 {
		return nil
	}
	n := copy(b.bb.B, b.bb.B[b.r:])
	b.bb.B = b.bb.B[:n]
	b.r = 0
	return nil
}

// Free hands the storage back to the pool. The buffer must not be used
// afterwards.
func (b *ConnBuffer) Free() {
	if b.bb == nil {
		return
	}
	b.bb.Reset()
	b.pool.Put(b.bb)
	b.bb = nil
	b.held = false
	b.r = 0
	b.pin = 0
}

func (b *ConnBuffer) hold() {
	b.held = true
	b.pin = b.r
}

func (b *ConnBuffer) release() {
	b.held = false
	b.pin = 0
}

func (b *ConnBuffer) isHeld() bool { return b.held }
