package buff

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/panjf2000/ants/v2"
	gnet "github.com/panjf2000/gnet/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// gnetHandler accepts connections on gnet event loops. The loops only move
// bytes; every connection's request loop runs on the worker pool and talks
// to the loop through a gnetStream.
type gnetHandler struct {
	gnet.BuiltinEventEngine

	conns *connServer
	opts  *options
	log   *zap.Logger
	pool  *ants.Pool
	ctx   context.Context

	engine gnet.Engine
	booted chan struct{}
}

func newGNetHandler(ctx context.Context, conns *connServer, opts *options) (*gnetHandler, error) {
	log := opts.logger.With(zap.String("transport", string(TransportGNet)))
	pool, err := ants.NewPool(opts.workers,
		ants.WithNonblocking(true),
		ants.WithLogger(antsLogger{log.Sugar()}),
		ants.WithPanicHandler(func(p any) {
			log.Error("connection worker panic", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &gnetHandler{
		conns:  conns,
		opts:   opts,
		log:    log,
		pool:   pool,
		ctx:    ctx,
		booted: make(chan struct{}),
	}, nil
}

func (h *gnetHandler) OnBoot(eng gnet.Engine) gnet.Action {
	h.engine = eng
	close(h.booted)
	h.log.Info("gnet engine started")
	return gnet.None
}

func (h *gnetHandler) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	st := newGNetStream(c)
	c.SetContext(st)
	err := h.pool.Submit(func() { h.run(c, st) })
	if err == nil {
		return nil, gnet.None
	}
	h.log.Warn("reject connection", zap.String("remote", addrString(c.RemoteAddr())), zap.Error(err))
	buf := h.conns.bufPool.Get()
	defer h.conns.bufPool.Put(buf)
	_ = writeError(buf, h.conns.bufPool, http.StatusServiceUnavailable, "", h.opts.serverHeader)
	return append([]byte(nil), buf.Bytes()...), gnet.Close
}

func (h *gnetHandler) run(c gnet.Conn, st *gnetStream) {
	if err := h.conns.serve(h.ctx, st, st, c.RemoteAddr()); err != nil {
		h.log.Debug("connection ended", zap.String("remote", addrString(c.RemoteAddr())), zap.Error(err))
	}
	_ = c.Close()
}

func (h *gnetHandler) OnTraffic(c gnet.Conn) gnet.Action {
	st, ok := c.Context().(*gnetStream)
	if !ok {
		return gnet.Close
	}
	n := min(st.space(), c.InboundBuffered())
	if n <= 0 {
		// Full; the stream wakes us once the reader has caught up.
		st.feed(nil, c.InboundBuffered() > 0)
		return gnet.None
	}
	data, err := c.Next(n)
	if err != nil {
		st.closeWithError(err)
		return gnet.Close
	}
	st.feed(data, c.InboundBuffered() > 0)
	return gnet.None
}

func (h *gnetHandler) OnClose(c gnet.Conn, err error) gnet.Action {
	if st, ok := c.Context().(*gnetStream); ok {
		st.closeWithError(err)
	}
	return gnet.None
}

// stop shuts the engine down and waits for the workers still draining
// their connections.
func (h *gnetHandler) stop(timeout time.Duration) error {
	var err error
	select {
	case <-h.booted:
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if serr := h.engine.Stop(ctx); serr != nil && !errors.Is(serr, context.Canceled) {
			err = multierr.Append(err, serr)
		}
	default:
	}
	return multierr.Append(err, h.pool.ReleaseTimeout(timeout))
}

type antsLogger struct{ s *zap.SugaredLogger }

func (l antsLogger) Printf(format string, args ...any) { l.s.Infof(format, args...) }
