package buff

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := NewRouter()
	r.Use(Logger(zap.New(core)))
	require.NoError(t, r.Handle(http.MethodGet, "/items/:id", func(c *Context) {
		_ = c.Text(http.StatusTeapot, "short")
	}))

	serveRoute(t, r, http.MethodGet, "/items/9")

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/items/9", fields["path"])
	assert.Equal(t, "/items/:id", fields["route"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, int64(5), fields["bytes"])
}

func TestRecoverLogsPanic(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := NewRouter()
	r.log = zap.New(core)
	require.NoError(t, r.Handle(http.MethodGet, "/boom", func(c *Context) { panic("boom") }))

	rec := serveRoute(t, r, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("handler panic").Len())
}
