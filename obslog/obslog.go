// Package obslog is the structured-logging facade used throughout this
// repository: a small set of package-level functions backed by a real
// structured logger (zap) so call sites never import the backing library
// directly.
package obslog

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger *zap.SugaredLogger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	logger = l.Sugar()
}

// SetLogger swaps the backing logger. cmd/atlas-ingest uses it to install
// the production zap logger it builds at startup.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l.Sugar()
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Infof(format string, args ...interface{})  { current().Infof(format, args...) }
func Warnf(format string, args ...interface{})  { current().Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { current().Errorf(format, args...) }

// Fatalf logs at fatal level and terminates the process. Only cmd/
// entrypoints should call this; library code should return errors instead.
func Fatalf(format string, args ...interface{}) {
	current().Fatalf(format, args...)
	os.Exit(1)
}

type ctxKey struct{}

// With attaches structured key/value pairs to ctx for later retrieval by
// FromContext, threading a scan/product id through context so every log
// line in a scan can be correlated.
func With(ctx context.Context, kv ...interface{}) context.Context {
	l := FromContext(ctx).With(kv...)
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried on ctx, or the package default.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok {
			return l
		}
	}
	return current()
}
