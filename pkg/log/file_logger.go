package log

import (
	"log/slog"
	"os"
	"sync"
)

// FileLogger appends trace events to a file.
// FileLogger is safe for concurrent use.
type FileLogger struct {
	mu     sync.Mutex
	file   *os.File
	enc    *Encoder
	errLog *slog.Logger
	failed int
	closed bool
}

// NewFileLogger opens path for appending, creating it with mode 0644.
// Write failures are reported to slog.Default() until SetErrorLogger
// says otherwise.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		file:   f,
		enc:    NewEncoder(f),
		errLog: slog.Default().With("component", "trace", "path", path),
	}, nil
}

// SetErrorLogger sets where events that could not be written are reported.
func (l *FileLogger) SetErrorLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errLog = logger.With("component", "trace", "path", l.file.Name())
}

// Log appends event. A failure never reaches the caller; it is logged and
// counted instead.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.failed++
		l.errLog.Warn("trace event not written",
			"session_id", event.SessionID,
			"category", event.Category.String(),
			"error", err)
	}
}

// Failed returns how many events could not be written.
func (l *FileLogger) Failed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failed
}

// Close closes the file. Later Log calls are dropped. Close is idempotent.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)
