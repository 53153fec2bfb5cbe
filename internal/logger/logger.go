// Package logger builds the slog loggers used across the mail queue and
// provides attribute helpers that are safe to call with zero values.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Options controls logger construction.
type Options struct {
	// Debug switches to a human readable text handler at debug level.
	Debug bool
	// Output defaults to os.Stderr.
	Output io.Writer
	// Service is attached to every record when set.
	Service string
}

// New creates a logger. Production output is JSON at info level.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var handler slog.Handler
	if opts.Debug {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo})
	}

	log := slog.New(handler)
	if opts.Service != "" {
		log = log.With(slog.String("service", opts.Service))
	}
	return log
}

// Nop returns a logger that discards everything.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Error creates an attribute for a single error under the key "error".
// Returns empty Attr for nil errors.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component tags the subsystem emitting the record.
func Component(name string) slog.Attr {
	if name == "" {
		return slog.Attr{}
	}
	return slog.String("component", name)
}

// MessageID identifies a queued mail message.
func MessageID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("message_id", id)
}

// Recipients renders a recipient list as a single comma separated value.
func Recipients(addrs []string) slog.Attr {
	if len(addrs) == 0 {
		return slog.Attr{}
	}
	return slog.String("recipients", strings.Join(addrs, ", "))
}

// Attempt records how many times delivery has been tried.
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Duration creates an attribute for a duration.
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Elapsed calculates the duration since start.
func Elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}
