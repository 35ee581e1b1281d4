package buff

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveRoute(t *testing.T, r *Router, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := newTestRequest(t, method+" "+target+" HTTP/1.1\r\n\r\n")
	rec := httptest.NewRecorder()
	r.Serve(rec, req)
	return rec
}

func TestRouterNormalizesDynamicPaths(t *testing.T) {
	r := NewRouter()
	err := r.Handle(http.MethodGet, "/foo/:id", func(c *Context) {
		assert.Equal(t, "123", c.Param("id"))
		assert.Equal(t, "/foo/:id", c.Route)
		_ = c.Text(http.StatusOK, "ok")
	})
	require.NoError(t, err)

	rec := serveRoute(t, r, http.MethodGet, "/foo//123/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestRouterQueryParameters(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Handle(http.MethodGet, "/search", func(c *Context) {
		_ = c.Text(http.StatusOK, c.Query("q")+"|"+c.Query("page")+"|"+c.Query("none"))
	}))

	rec := serveRoute(t, r, http.MethodGet, "/search?q=go%20lang&page=1&page=2")
	assert.Equal(t, "go lang|2|", rec.Body.String())
}

func TestRouterMatching(t *testing.T) {
	r := NewRouter()
	reply := func(s string) Handler {
		return func(c *Context) { _ = c.Text(http.StatusOK, s) }
	}
	require.NoError(t, r.Handle(http.MethodGet, "/users/new", reply("static")))
	require.NoError(t, r.Handle(http.MethodGet, "/users/:id", func(c *Context) {
		_ = c.Text(http.StatusOK, "param "+c.Param("id"))
	}))
	require.NoError(t, r.Handle(http.MethodGet, "/files/*path", func(c *Context) {
		_ = c.Text(http.StatusOK, "splat "+c.Param("path"))
	}))
	require.NoError(t, r.Handle(http.MethodPost, "/users/:id", reply("post")))

	tests := []struct {
		method, target string
		code           int
		body           string
	}{
		{http.MethodGet, "/users/new", http.StatusOK, "static"},
		{http.MethodGet, "/users/42", http.StatusOK, "param 42"},
		{http.MethodPost, "/users/42", http.StatusOK, "post"},
		{http.MethodGet, "/files/a/b/c.txt", http.StatusOK, "splat a/b/c.txt"},
		{http.MethodDelete, "/users/42", http.StatusMethodNotAllowed, "method not allowed"},
		{http.MethodGet, "/nope", http.StatusNotFound, "route not found"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := serveRoute(t, r, tt.method, tt.target)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.body)
		})
	}
}

func TestRouterRegistrationErrors(t *testing.T) {
	r := NewRouter()
	h := func(c *Context) {}

	assert.Error(t, r.Handle(http.MethodGet, "relative", h))
	require.NoError(t, r.Handle(http.MethodGet, "/a", h))
	assert.Error(t, r.Handle(http.MethodGet, "/a", h))
	require.NoError(t, r.Handle(http.MethodGet, "/u/:id", h))
	assert.Error(t, r.Handle(http.MethodGet, "/u/:name/x", h))
	assert.Error(t, r.Handle(http.MethodGet, "/s/*rest/more", h))
	assert.NoError(t, r.Verify())
}

func TestRouterGroupAndMiddleware(t *testing.T) {
	r := NewRouter()
	var order []string
	mw := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(c *Context) {
				order = append(order, name)
				next(c)
			}
		}
	}
	r.Use(mw("router"))
	g := r.Group("/api/", mw("group"))
	require.NoError(t, g.Handle(http.MethodGet, "/v1/ping", func(c *Context) {
		order = append(order, "handler")
		_ = c.Text(http.StatusOK, "pong")
	}, mw("route")))

	rec := serveRoute(t, r, http.MethodGet, "/api/v1/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"router", "group", "route", "handler"}, order)
	assert.True(t, strings.Contains(r.Dump(), "'/'"))
}

func TestRouterRecoversPanics(t *testing.T) {
	r := NewRouter()
	require.NoError(t, r.Handle(http.MethodGet, "/boom", func(c *Context) { panic("boom") }))

	rec := serveRoute(t, r, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRouterContextRouteReset(t *testing.T) {
	r := NewRouter()
	req := newTestRequest(t, "GET / HTTP/1.1\r\n\r\n")

	ctx := r.getCtx(httptest.NewRecorder(), req)
	ctx.Route = "stale"
	ctx.Set("k", 1)
	r.putCtx(ctx)

	ctx2 := r.getCtx(httptest.NewRecorder(), req)
	assert.Equal(t, "", ctx2.Route)
	_, ok := ctx2.Get("k")
	assert.False(t, ok)
	r.putCtx(ctx2)
}
