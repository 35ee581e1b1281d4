package buff

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"

	gnet "github.com/panjf2000/gnet/v2"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Engine struct {
	R       *Router
	mws     []Middleware
	opts    options
	bufPool *bytebufferpool.Pool
	log     *zap.Logger
}

func NewEngine(opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	r := NewRouter()
	r.log = o.logger
	return &Engine{R: r, opts: o, bufPool: &bytebufferpool.Pool{}, log: o.logger}
}

func (e *Engine) Use(mw ...Middleware) { e.mws = append(e.mws, mw...) }

func (e *Engine) GET(path string, h Handler)    { e.handle(http.MethodGet, path, h) }
func (e *Engine) POST(path string, h Handler)   { e.handle(http.MethodPost, path, h) }
func (e *Engine) PUT(path string, h Handler)    { e.handle(http.MethodPut, path, h) }
func (e *Engine) PATCH(path string, h Handler)  { e.handle(http.MethodPatch, path, h) }
func (e *Engine) DELETE(path string, h Handler) { e.handle(http.MethodDelete, path, h) }

// handle registers a route. A rejected route is logged, not fatal; use
// R.Handle directly to get the error.
func (e *Engine) handle(method, path string, h Handler) {
	if err := e.R.Handle(method, path, h, e.mws...); err != nil {
		e.log.Error("register route", zap.String("method", method), zap.String("path", path), zap.Error(err))
	}
}

func (e *Engine) connServer() *connServer {
	return &connServer{router: e.R, opts: &e.opts, bufPool: e.bufPool, log: e.log}
}

// ServeConn runs the request loop on one connection and returns when it
// ends. The caller keeps ownership of c.
func (e *Engine) ServeConn(ctx context.Context, c net.Conn) error {
	return e.connServer().serve(ctx, c, c, c.RemoteAddr())
}

// Serve accepts connections on ln until ctx is done, then waits up to the
// shutdown timeout for open connections.
func (e *Engine) Serve(ctx context.Context, ln net.Listener) error {
	srv := newNetServer(e.connServer(), e.log)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.acceptLoop(gctx, ln) })
	g.Go(func() error {
		<-gctx.Done()
		return srv.shutdown(e.opts.shutdownTimeout)
	})
	return g.Wait()
}

// Run listens on addr with the configured transport and blocks until ctx
// is done or a shutdown signal arrives.
func (e *Engine) Run(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("missing address")
	}
	ctx, stop := signal.NotifyContext(ctx, e.opts.shutdownSignals...)
	defer stop()

	if e.opts.transport == TransportGNet {
		return e.runGNet(ctx, addr)
	}
	ln, err := listen(ctx, addr, e.opts.reusePort)
	if err != nil {
		return err
	}
	return e.Serve(ctx, ln)
}

func (e *Engine) runGNet(ctx context.Context, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	h, err := newGNetHandler(ctx, e.connServer(), &e.opts)
	if err != nil {
		return err
	}
	protoAddr := ensureProtoAddr(addr)
	opts := append([]gnet.Option{
		gnet.WithMulticore(e.opts.multicore),
		gnet.WithReusePort(e.opts.reusePort),
		gnet.WithLogger(e.log.Sugar()),
	}, e.opts.gnetOpts...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		h.log.Info("listening", zap.String("addr", protoAddr))
		return gnet.Run(h, protoAddr, opts...)
	})
	g.Go(func() error {
		<-gctx.Done()
		return h.stop(e.opts.shutdownTimeout)
	})
	return g.Wait()
}
