package buff

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSocket struct {
	mock.Mock
}

func (m *mockSocket) Read(p []byte) (int, error) {
	args := m.Called(p)
	if s, ok := args.Get(0).(string); ok {
		return copy(p, s), args.Error(1)
	}
	return args.Int(0), args.Error(1)
}

// endlessSocket never runs dry.
type endlessSocket struct{}

func (endlessSocket) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'x'
	}
	return len(p), nil
}

func bodyFrom(t *testing.T, head, buffered string, sock io.Reader, policy LengthPolicy) (*BodyReader, *ConnBuffer) {
	t.Helper()
	raw, b := decodeFrom(t, head+buffered, sock, policy)
	br, err := raw.Body()
	require.NoError(t, err)
	return br, b
}

func TestBodyReaderExactLength(t *testing.T) {
	const body = "hello world!!"
	head := fmt.Sprintf("POST / HTTP/1.1\r\nContent-Length: %d\r\n\r\n", len(body))

	for _, size := range []int{1, 3, 7, 64} {
		t.Run(fmt.Sprintf("read_%d", size), func(t *testing.T) {
			sock := iotest.HalfReader(strings.NewReader(body[4:] + "NEXT"))
			br, b := bodyFrom(t, head, body[:4], sock, LengthZero)

			var got []byte
			p := make([]byte, size)
			for {
				n, err := br.Read(p)
				got = append(got, p[:n]...)
				if errors.Is(err, io.EOF) {
					break
				}
				require.NoError(t, err)
			}
			assert.Equal(t, body, string(got))
			assert.Equal(t, int64(len(body)), br.Total())
			assert.Equal(t, int64(0), br.Remaining())

			for i := 0; i < 3; i++ {
				n, err := br.Read(p)
				assert.Equal(t, 0, n)
				assert.ErrorIs(t, err, io.EOF)
			}
			assert.True(t, strings.HasPrefix("NEXT", string(b.Unread())))
		})
	}
}

func TestBodyReaderBufferedSkipsSocket(t *testing.T) {
	sock := &mockSocket{}
	br, b := bodyFrom(t, "POST / HTTP/1.1\r\nContent-Length: 5\r\n\r\n", "helloGET /", sock, LengthZero)

	got, err := io.ReadAll(br)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.Equal(t, "GET /", string(b.Unread()))
	sock.AssertNotCalled(t, "Read", mock.Anything)
}

func TestBodyReaderZeroLength(t *testing.T) {
	sock := &mockSocket{}
	br, _ := bodyFrom(t, "GET / HTTP/1.1\r\n\r\n", "", sock, LengthZero)

	n, err := br.Read(make([]byte, 8))
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, br.Close())
	sock.AssertNotCalled(t, "Read", mock.Anything)
}

func TestBodyReaderEarlyEOF(t *testing.T) {
	sock := &mockSocket{}
	sock.On("Read", mock.Anything).Return("ab", nil).Once()
	sock.On("Read", mock.Anything).Return(0, io.EOF)
	br, _ := bodyFrom(t, "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\n", "xyz", sock, LengthZero)

	got, err := io.ReadAll(br)
	assert.Equal(t, "xyzab", string(got))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.True(t, IsKind(err, KindSocketIO))
	assert.Equal(t, int64(5), br.Total())

	_, err = br.Read(make([]byte, 4))
	assert.True(t, IsKind(err, KindSocketIO))
}

func TestBodyReaderSocketError(t *testing.T) {
	reset := errors.New("connection reset")
	sock := &mockSocket{}
	sock.On("Read", mock.Anything).Return("abc", reset).Once()
	br, _ := bodyFrom(t, "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\n", "", sock, LengthZero)

	p := make([]byte, 16)
	n, err := br.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(p[:n]))

	_, err = br.Read(p)
	require.ErrorIs(t, err, reset)
	assert.True(t, IsKind(err, KindSocketIO))
	assert.Equal(t, int64(3), br.Total())
	sock.AssertNumberOfCalls(t, "Read", 1)
}

func TestBodyReaderNoProgress(t *testing.T) {
	sock := &mockSocket{}
	sock.On("Read", mock.Anything).Return(0, nil)
	br, _ := bodyFrom(t, "POST / HTTP/1.1\r\nContent-Length: 1\r\n\r\n", "", sock, LengthZero)

	_, err := br.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.ErrNoProgress)
	sock.AssertNumberOfCalls(t, "Read", maxEmptyReads)
}

func TestBodyReaderFillConsume(t *testing.T) {
	br, _ := bodyFrom(t, "POST / HTTP/1.1\r\nContent-Length: 4\r\n\r\n", "abcdef", nil, LengthZero)

	data, err := br.Fill()
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))

	br.Consume(2)
	assert.Equal(t, int64(2), br.Total())
	assert.Equal(t, int64(2), br.Remaining())

	br.Consume(100)
	assert.Equal(t, int64(4), br.Total())
	_, err = br.Fill()
	assert.ErrorIs(t, err, io.EOF)
}

func TestBodyReaderWriteTo(t *testing.T) {
	sock := strings.NewReader("world")
	br, b := bodyFrom(t, "POST / HTTP/1.1\r\nContent-Length: 10\r\n\r\n", "hello", sock, LengthZero)

	var out bytes.Buffer
	n, err := br.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, "helloworld", out.String())
	assert.Equal(t, 0, b.Buffered())
}

func TestBodyReaderCloseDrains(t *testing.T) {
	sock := strings.NewReader("34567GET / HTTP/1.1\r\n\r\n")
	br, b := bodyFrom(t, "POST / HTTP/1.1\r\nContent-Length: 8\r\n\r\n", "012", sock, LengthZero)

	p := make([]byte, 2)
	_, err := br.Read(p)
	require.NoError(t, err)

	require.NoError(t, br.Close())
	assert.False(t, b.isHeld())
	assert.Equal(t, "GET / HTTP/1.1\r\n\r\n", string(b.Unread()))

	_, err = br.Read(p)
	assert.ErrorIs(t, err, ErrBodyConsumed)
	require.NoError(t, br.Close())
}

func TestBodyReaderUnbounded(t *testing.T) {
	t.Run("read to EOF", func(t *testing.T) {
		br, _ := bodyFrom(t, "POST / HTTP/1.1\r\n\r\n", "ab", strings.NewReader("cd"), LengthUnbounded)
		assert.Equal(t, Unbounded, br.Limit())
		assert.Equal(t, Unbounded, br.Remaining())

		got, err := io.ReadAll(br)
		require.NoError(t, err)
		assert.Equal(t, "abcd", string(got))
		require.NoError(t, br.Close())
	})
	t.Run("close before EOF", func(t *testing.T) {
		br, b := bodyFrom(t, "POST / HTTP/1.1\r\n\r\n", "ab", strings.NewReader("cd"), LengthUnbounded)
		assert.ErrorIs(t, br.Close(), ErrUnboundedBody)
		assert.False(t, b.isHeld())
	})
}

func TestBodyReaderStreamsInBoundedMemory(t *testing.T) {
	const size = 8 << 20
	head := fmt.Sprintf("POST /upload HTTP/1.1\r\nContent-Length: %d\r\n\r\n", size)
	raw, b := decodeFrom(t, head, endlessSocket{}, LengthZero)
	br, err := raw.Body()
	require.NoError(t, err)

	p := make([]byte, defaultReadChunk)
	var streamed int64
	for {
		n, err := br.Read(p)
		streamed += int64(n)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		require.LessOrEqual(t, cap(b.bb.B), 2*defaultReadChunk+len(head))
	}
	assert.Equal(t, int64(size), streamed)
	assert.Equal(t, "/upload", raw.Path())
	require.NoError(t, br.Close())
}
