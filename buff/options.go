package buff

import (
	"os"
	"syscall"
	"time"

	gnet "github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"
)

const (
	defaultMaxHeaderBytes  = 8 << 10
	defaultShutdownTimeout = 5 * time.Second
	defaultServerHeader    = "buff"
	defaultWorkers         = 1024
)

// Transport selects how connections are accepted and read.
type Transport string

const (
	// TransportNet runs one goroutine per accepted net.Conn.
	TransportNet Transport = "net"
	// TransportGNet accepts on a gnet event loop and runs each connection's
	// blocking loop on a worker pool.
	TransportGNet Transport = "gnet"
)

type options struct {
	transport       Transport
	maxHeaderBytes  int
	readChunk       int
	readTimeout     time.Duration
	lengthPolicy    LengthPolicy
	workers         int
	multicore       bool
	reusePort       bool
	serverHeader    string
	shutdownSignals []os.Signal
	shutdownTimeout time.Duration
	logger          *zap.Logger
	gnetOpts        []gnet.Option
}

func defaultOptions() options {
	return options{
		transport:       TransportNet,
		maxHeaderBytes:  defaultMaxHeaderBytes,
		readChunk:       defaultReadChunk,
		lengthPolicy:    LengthZero,
		workers:         defaultWorkers,
		serverHeader:    defaultServerHeader,
		shutdownSignals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		shutdownTimeout: defaultShutdownTimeout,
		logger:          zap.NewNop(),
	}
}

// Option configures an Engine.
type Option func(*options)

func WithTransport(t Transport) Option {
	return func(o *options) {
		if t == TransportNet || t == TransportGNet {
			o.transport = t
		}
	}
}

// WithMaxHeaderBytes sets the maximum size of a request line plus headers.
func WithMaxHeaderBytes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxHeaderBytes = n
		}
	}
}

// WithReadChunk sets how many bytes each socket read asks for.
func WithReadChunk(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readChunk = n
		}
	}
}

// WithReadTimeout arms a read deadline before every socket read. Zero
// disables it.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.readTimeout = d
		}
	}
}

// WithLengthPolicy chooses how requests without Content-Length are read.
func WithLengthPolicy(p LengthPolicy) Option {
	return func(o *options) { o.lengthPolicy = p }
}

// WithWorkers bounds the worker pool used by the gnet transport.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

func WithMulticore(on bool) Option {
	return func(o *options) { o.multicore = on }
}

func WithReusePort(on bool) Option {
	return func(o *options) { o.reusePort = on }
}

// WithServerHeader overrides the default Server response header.
func WithServerHeader(header string) Option {
	return func(o *options) {
		if header != "" {
			o.serverHeader = header
		}
	}
}

// WithShutdownSignals overrides the OS signals that trigger graceful shutdown.
func WithShutdownSignals(signals ...os.Signal) Option {
	return func(o *options) {
		if len(signals) > 0 {
			o.shutdownSignals = signals
		}
	}
}

// WithShutdownTimeout overrides the graceful shutdown timeout.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithGNetOption forwards a gnet.Option to the underlying event engine.
func WithGNetOption(opt gnet.Option) Option {
	return func(o *options) {
		o.gnetOpts = append(o.gnetOpts, opt)
	}
}
