package buff

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const shutdownPollInterval = 50 * time.Millisecond

// netServer is the goroutine-per-connection transport.
type netServer struct {
	conns *connServer
	log   *zap.Logger

	mu     sync.Mutex
	active map[*trackedConn]struct{}
	wg     sync.WaitGroup
}

// trackedConn records whether the request loop is waiting for the first
// byte of a new request, so shutdown can interrupt only idle reads.
type trackedConn struct {
	net.Conn
	idle atomic.Bool
}

func (c *trackedConn) setIdle(idle bool) { c.idle.Store(idle) }

func newNetServer(conns *connServer, log *zap.Logger) *netServer {
	return &netServer{
		conns:  conns,
		log:    log.With(zap.String("transport", string(TransportNet))),
		active: make(map[*trackedConn]struct{}),
	}
}

func listen(ctx context.Context, addr string, reusePort bool) (net.Listener, error) {
	network, address := splitProtoAddr(addr)
	lc := net.ListenConfig{}
	if reusePort {
		lc.Control = reusePortControl
	}
	return lc.Listen(ctx, network, address)
}

// acceptLoop serves ln until ctx is done or accepting fails for good.
func (s *netServer) acceptLoop(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.log.Info("listening", zap.String("addr", ln.Addr().String()))
	var delay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if (errors.As(err, &ne) && ne.Timeout()) || isTemporaryAccept(err) {
				delay = backoff(delay)
				s.log.Warn("accept", zap.Error(err), zap.Duration("retry_in", delay))
				time.Sleep(delay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		delay = 0
		c := &trackedConn{Conn: nc}
		s.track(c, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(c, false)
			defer c.Close()
			if err := s.conns.serve(ctx, c, c, c.RemoteAddr()); err != nil {
				s.log.Debug("connection ended", zap.String("remote", addrString(c.RemoteAddr())), zap.Error(err))
			}
		}()
	}
}

func backoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		d = time.Second
	}
	return d
}

func (s *netServer) track(c *trackedConn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.active[c] = struct{}{}
	} else {
		delete(s.active, c)
	}
}

// shutdown waits for open connections to finish their current request,
// waking the ones idling between requests so they see the shutdown.
// Whatever is still open after timeout is closed.
func (s *netServer) shutdown(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	tick := time.NewTicker(shutdownPollInterval)
	defer tick.Stop()
	expire := time.NewTimer(timeout)
	defer expire.Stop()

	for expired := false; !expired; {
		s.wakeIdle()
		select {
		case <-done:
			return nil
		case <-tick.C:
		case <-expire.C:
			expired = true
		}
	}

	s.mu.Lock()
	n := len(s.active)
	for c := range s.active {
		_ = c.Close()
	}
	s.mu.Unlock()
	<-done
	return fmt.Errorf("shutdown: closed %d connections after %s", n, timeout)
}

func (s *netServer) wakeIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for c := range s.active {
		if c.idle.Load() {
			_ = c.SetReadDeadline(now)
		}
	}
}
