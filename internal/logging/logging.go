// Package logging provides the watch-attach status log: an append-only sink
// of timestamped lines shared by the whole process.
//
// Lines are formatted as
//
//	[WATCH ATTACH] [H:MM:SS] message
//
// The default logger is created lazily on first use by Instance. Init
// installs a configured logger and returns a cleanup function that closes
// its sink and clears the singleton.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const prefix = "[WATCH ATTACH]"

// Logger appends timestamped status lines to a sink
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer
	clock  clock.Clock
	debug  *zap.SugaredLogger
}

// Options configures a Logger
type Options struct {
	// Writer receives formatted lines. Defaults to os.Stderr.
	Writer io.Writer
	// Path, when set, opens (append mode) a file sink instead of Writer.
	Path string
	// Verbose mirrors every line to a zap JSON logger at debug level.
	Verbose bool
	// Clock is used for timestamps. Defaults to the wall clock.
	Clock clock.Clock
}

// New creates a Logger from opts
func New(opts Options) (*Logger, error) {
	l := &Logger{out: opts.Writer, clock: opts.Clock}
	if l.clock == nil {
		l.clock = clock.New()
	}
	if opts.Path != "" {
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.out = f
		l.closer = f
	}
	if l.out == nil {
		l.out = os.Stderr
	}
	if opts.Verbose {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Encoding = "json"
		if zl, err := cfg.Build(); err == nil {
			l.debug = zl.Sugar().Named("watchattach")
		}
	}
	return l, nil
}

// Log appends one formatted line
func (l *Logger) Log(format string, args ...any) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s [%d:%02d:%02d] %s\n", prefix, now.Hour(), now.Minute(), now.Second(), msg)
	if l.debug != nil {
		l.debug.Debugw(msg, "ts", now)
	}
}

// Close flushes the debug mirror and closes a file sink
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.debug != nil {
		_ = l.debug.Sync()
		l.debug = nil
	}
	if l.closer != nil {
		err := l.closer.Close()
		l.closer = nil
		l.out = io.Discard
		return err
	}
	return nil
}

var (
	mu       sync.Mutex
	instance *Logger
)

// Instance returns the process-wide logger, creating a stderr logger on first use
func Instance() *Logger {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance, _ = New(Options{})
	}
	return instance
}

// Init installs a configured logger as the process-wide instance.
// The returned cleanup closes it and resets the singleton.
func Init(opts Options) (func(), error) {
	l, err := New(opts)
	if err != nil {
		return func() {}, err
	}
	mu.Lock()
	prev := instance
	instance = l
	mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	return func() {
		mu.Lock()
		if instance == l {
			instance = nil
		}
		mu.Unlock()
		_ = l.Close()
	}, nil
}

// Log appends a line to the process-wide logger
func Log(format string, args ...any) {
	Instance().Log(format, args...)
}
