package buff

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Middleware func(Handler) Handler

func chain(mws ...Middleware) func(Handler) Handler {
	return func(h Handler) Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			h = mws[i](h)
		}
		return h
	}
}

// Recover turns a handler panic into a 500. A nil logger discards the
// panic report.
func Recover(log *zap.Logger) Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(btx *Context) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panic", zap.Any("panic", r), zap.String("route", btx.Route))
					_ = btx.JSON(http.StatusInternalServerError, map[string]any{"error": "internal error"})
				}
			}()
			next(btx)
		}
	}
}

func Logger(log *zap.Logger) Middleware {
	return func(next Handler) Handler {
		return func(c *Context) {
			start := time.Now()
			next(c)
			dur := time.Since(start)
			status := http.StatusOK
			written := 0
			if sw, ok := c.Writer.(*statusWriter); ok {
				status = sw.Status()
				written = sw.BytesWritten()
			}
			log.Info("request",
				zap.String("method", c.Request.Method()),
				zap.String("path", c.Request.Path()),
				zap.String("route", c.Route),
				zap.Int("status", status),
				zap.Int("bytes", written),
				zap.Duration("duration", dur),
			)
		}
	}
}
