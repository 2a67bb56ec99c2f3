package log

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once   sync.Once
	logger *zap.Logger
)

// Logger returns the process-wide zap logger, building it on first use.
func Logger() *zap.Logger {
	once.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	})
	return logger
}

// ReplaceLogger swaps the process-wide logger. Intended for tests and
// for hosts that already own a configured zap instance.
func ReplaceLogger(l *zap.Logger) {
	once.Do(func() {})
	if l != nil {
		logger = l
	}
}
