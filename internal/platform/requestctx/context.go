// Package requestctx holds the per-request logger and trace metadata. It sits below observability so the
// services and the HTTP layer can share them without an import cycle.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey int

const (
	keyLogger ctxKey = iota
	keyTrace
)

var nop = zap.NewNop()

// TraceInfo is the Cloud Trace context of the request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// WithLogger attaches logger to ctx. A nil logger attaches the no-op logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = nop
	}
	return context.WithValue(orBackground(ctx), keyLogger, logger)
}

// Logger returns the logger attached to ctx, or NoopLogger.
func Logger(ctx context.Context) *zap.Logger {
	if l, ok := orBackground(ctx).Value(keyLogger).(*zap.Logger); ok && l != nil {
		return l
	}
	return nop
}

// NoopLogger is the logger Logger falls back to. Compare against it to tell whether a request logger is set.
func NoopLogger() *zap.Logger { return nop }

// WithTrace attaches trace metadata to ctx.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(orBackground(ctx), keyTrace, info)
}

// Trace returns the trace metadata attached to ctx.
func Trace(ctx context.Context) (TraceInfo, bool) {
	info, ok := orBackground(ctx).Value(keyTrace).(TraceInfo)
	return info, ok
}

// TraceID is Trace(ctx).TraceID, empty when untraced.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}
