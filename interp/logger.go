package interp

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the package's logger. It is a no-op logger by default;
// SetLogger installs a real one (cmd/clrvm does this from -verbose).
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger installs l as the package logger. Passing nil restores the
// no-op logger.
func SetLogger(l *zap.Logger) {
	loggerOnce.Do(func() {}) // ensure Logger's default assignment never overwrites an explicit SetLogger
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}
