package obs

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	loggerMu sync.RWMutex
	logger   = newJSONLogger(os.Stdout)
)

func newJSONLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// Logger returns the shared structured logger used across the service.
func Logger() *slog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}

// SetOutput redirects the shared logger and returns a func restoring the previous one.
// Tests use it to capture log lines.
func SetOutput(w io.Writer) (restore func()) {
	loggerMu.Lock()
	prev := logger
	logger = newJSONLogger(w)
	loggerMu.Unlock()
	return func() {
		loggerMu.Lock()
		logger = prev
		loggerMu.Unlock()
	}
}

// ResolveLogger returns l, or the shared logger when l is nil.
func ResolveLogger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Logger()
	}
	return l
}

// LogRequest emits a structured line with common HTTP fields.
func LogRequest(method, path string, status int, durationMS float64, requestID string) {
	Logger().Info("http request",
		"event", "http_request",
		"method", method,
		"path", path,
		"status", status,
		"duration_ms", durationMS,
		"request_id", requestID,
	)
}
