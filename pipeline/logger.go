package pipeline

import (
	"sync"

	"github.com/wippyai/wasm-bindgen/assemble"
	"github.com/wippyai/wasm-bindgen/jsglue"
	"github.com/wippyai/wasm-bindgen/transform"
	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the pipeline package's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the pipeline package's logger.
// This must be called before any pipeline operations.
func SetLogger(l *zap.Logger) {
	logger = l
}

// SetAllLoggers configures every stage's logger at once.
func SetAllLoggers(l *zap.Logger) {
	SetLogger(l)
	transform.SetLogger(l)
	jsglue.SetLogger(l)
	assemble.SetLogger(l)
}
