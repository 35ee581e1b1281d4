package buff

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawRequestContentLength(t *testing.T) {
	tests := []struct {
		name    string
		headers string
		policy  LengthPolicy
		want    int64
		wantErr bool
	}{
		{name: "absent zero policy", want: 0},
		{name: "absent unbounded policy", policy: LengthUnbounded, want: Unbounded},
		{name: "declared", headers: "Content-Length: 10\r\n", want: 10},
		{name: "case insensitive name", headers: "content-LENGTH: 3\r\n", policy: LengthUnbounded, want: 3},
		{name: "duplicate equal", headers: "Content-Length: 5\r\nContent-Length: 5\r\n", want: 5},
		{name: "conflicting", headers: "Content-Length: 5\r\nContent-Length: 6\r\n", wantErr: true},
		{name: "not a number", headers: "Content-Length: abc\r\n", wantErr: true},
		{name: "negative", headers: "Content-Length: -1\r\n", wantErr: true},
		{name: "empty", headers: "Content-Length:\r\n", wantErr: true},
		{name: "overflow", headers: "Content-Length: 99999999999999999999\r\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, _ := decodeFrom(t, "POST / HTTP/1.1\r\n"+tt.headers+"\r\n", nil, tt.policy)
			n, err := raw.ContentLength()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidContentLength)
				assert.True(t, IsKind(err, KindContentLength))
				assert.Equal(t, http.StatusBadRequest, StatusCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestRawRequestHeaderLookup(t *testing.T) {
	raw, _ := decodeFrom(t, "GET / HTTP/1.1\r\nX-Id: one\r\nx-id: two\r\n\r\n", nil, LengthZero)

	v, ok := raw.Header("X-ID")
	require.True(t, ok)
	assert.Equal(t, "one", string(v))

	_, ok = raw.Header("X-Missing")
	assert.False(t, ok)
}

func TestRawRequestMethodAndPath(t *testing.T) {
	raw, b := decodeFrom(t, "PURGE /cache HTTP/1.0\r\n\r\n", nil, LengthZero)
	assert.Equal(t, "PURGE", raw.Method())
	assert.Equal(t, uint8(0), raw.Version())

	path := raw.Path()
	raw.Release()
	require.NoError(t, b.Reset())
	fill(t, b, "GET /other HTTP/1.1\r\n\r\n")
	assert.Equal(t, "/cache", path)
}

func TestRawRequestJSONBody(t *testing.T) {
	type payload struct {
		Bar string `json:"bar"`
	}

	t.Run("buffered", func(t *testing.T) {
		body := `{"bar":"x"}`
		raw, b := decodeFrom(t, "POST / HTTP/1.1\r\nContent-Length: 11\r\n\r\n"+body+"GET", nil, LengthZero)
		var p payload
		require.NoError(t, raw.JSONBody(&p))
		assert.Equal(t, "x", p.Bar)
		assert.Equal(t, body+"GET", string(b.Unread()))
	})
	t.Run("not fully buffered", func(t *testing.T) {
		raw, _ := decodeFrom(t, "POST / HTTP/1.1\r\nContent-Length: 20\r\n\r\n{\"bar\"", nil, LengthZero)
		var p payload
		err := raw.JSONBody(&p)
		require.ErrorIs(t, err, io.ErrUnexpectedEOF)
		assert.True(t, IsKind(err, KindBodyDecode))
	})
	t.Run("invalid json", func(t *testing.T) {
		raw, _ := decodeFrom(t, "POST / HTTP/1.1\r\nContent-Length: 3\r\n\r\nnop", nil, LengthZero)
		var p payload
		assert.True(t, IsKind(raw.JSONBody(&p), KindBodyDecode))
	})
}

func TestRawRequestBodyOnce(t *testing.T) {
	raw, _ := decodeFrom(t, "POST / HTTP/1.1\r\nContent-Length: 0\r\n\r\n", nil, LengthZero)
	_, err := raw.Body()
	require.NoError(t, err)
	_, err = raw.Body()
	assert.ErrorIs(t, err, ErrBodyConsumed)
}
