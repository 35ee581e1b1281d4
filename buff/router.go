package buff

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type Handler func(c *Context)

type Router struct {
	root *node

	mw []Middleware

	notFound Handler

	pool sync.Pool

	fast map[string]map[string]Handler

	mu sync.RWMutex

	log *zap.Logger
}

func NewRouter() *Router {
	r := &Router{
		root: newNode("/"),
		mw:   make([]Middleware, 0),
		notFound: func(btx *Context) {
			_ = btx.JSON(http.StatusNotFound, map[string]any{"error": "route not found"})
		},
		fast: make(map[string]map[string]Handler),
		log:  zap.NewNop(),
	}
	r.pool.New = func() any { return &Context{} }
	return r
}

func (r *Router) Use(m ...Middleware) { r.mw = append(r.mw, m...) }

func (r *Router) Handle(method, path string, h Handler, mws ...Middleware) error {
	if path == "" || path[0] != '/' {
		return errors.New("path must start with '/'")
	}
	method = strings.ToUpper(method)
	clean := normalize(path)

	final := chain(append(r.mw, mws...)...)(Recover(r.log)(h))

	r.mu.Lock()
	defer r.mu.Unlock()

	if !strings.ContainsAny(clean, ":*") {
		mm := r.fast[method]
		if mm == nil {
			mm = map[string]Handler{}
			r.fast[method] = mm
		}
		if _, ok := mm[clean]; ok {
			return fmt.Errorf("route exists: %s %s", method, clean)
		}
		mm[clean] = final
		return nil
	}

	return r.root.add(method, splitPath(clean), final, clean)
}

type Group struct {
	r    *Router
	base string
	mw   []Middleware
}

func (r *Router) Group(prefix string, m ...Middleware) *Group {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return &Group{r: r, base: strings.TrimRight(prefix, "/"), mw: m}
}

func (g *Group) Handle(method, path string, h Handler, mws ...Middleware) error {
	full := g.base
	if path != "" && path != "/" {
		full += "/" + strings.Trim(path, "/")
	}
	if full == "" {
		full = "/"
	}
	return g.r.Handle(method, full, h, append(g.mw, mws...)...)
}

// Serve routes req, filling its URL and query parameters before the
// handler runs.
func (r *Router) Serve(w http.ResponseWriter, req *Request) {
	target, rawQuery, _ := strings.Cut(req.Path(), "?")
	parseQuery(rawQuery, req.Params)
	method := req.Method()
	clean := normalize(target)

	r.mu.RLock()
	h, ok := r.fast[method][clean]
	root := r.root
	r.mu.RUnlock()

	c := r.getCtx(w, req)
	defer r.putCtx(c)

	// Fast path
	if ok {
		c.Route = clean
		h(c)
		return
	}

	// Slow path
	leaf, params := root.find(splitPath(clean), nil)
	if leaf == nil || len(leaf.handlers) == 0 {
		c.Route = clean
		r.notFound(c)
		return
	}
	for _, p := range params {
		req.URLParams[p.key] = p.val
	}
	h = leaf.handlers[method]
	if h == nil {
		c.Route = clean
		_ = c.JSON(http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	c.Route = leaf.tpls[method]
	h(c)
}

// parseQuery fills dst from a raw query string. Repeated keys keep the
// last value.
func parseQuery(raw string, dst map[string]string) {
	if raw == "" {
		return
	}
	values, _ := url.ParseQuery(raw)
	for k, vv := range values {
		if len(vv) > 0 {
			dst[k] = vv[len(vv)-1]
		}
	}
}

func (r *Router) getCtx(w http.ResponseWriter, req *Request) *Context {
	c := r.pool.Get().(*Context)
	c.sw = statusWriter{ResponseWriter: w}
	c.Writer, c.Request = &c.sw, req
	c.Route = ""
	if c.store != nil {
		for k := range c.store {
			delete(c.store, k)
		}
	}
	return c
}

func (r *Router) putCtx(c *Context) {
	c.Writer, c.Request = nil, nil
	r.pool.Put(c)
}

// Verify 基础健康检查
func (r *Router) Verify() error { return verifyNode(r.root) }

func verifyNode(n *node) error {
	if n.splat {
		if n.pchild != nil || n.schild != nil || len(n.children) > 0 {
			return fmt.Errorf("splat node must be terminal: %s", n.part)
		}
	}
	for _, ch := range n.children {
		if err := verifyNode(ch); err != nil {
			return err
		}
	}
	if n.pchild != nil {
		if err := verifyNode(n.pchild); err != nil {
			return err
		}
	}
	if n.schild != nil {
		if err := verifyNode(n.schild); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) Dump() string { return dumpNode(r.root, 0) }

func dumpNode(n *node, depth int) string {
	pad := strings.Repeat(" ", depth)
	line := pad + "- '" + n.part + "'"
	if len(n.handlers) > 0 {
		line += " [H]"
	}
	out := line + "\n"
	for _, ch := range n.children {
		out += dumpNode(ch, depth+1)
	}
	if n.pchild != nil {
		out += dumpNode(n.pchild, depth+1)
	}
	if n.schild != nil {
		out += dumpNode(n.schild, depth+1)
	}
	return out
}
