package vcache

import (
	"io"
	"log/slog"
)

// Options configures a Store.
type Options struct {
	Logger      *slog.Logger
	Concurrency int
}

// Option is a functional option for configuring New.
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithLogger sets the logger used for degraded-path diagnostics. The store
// logs at debug level only; the default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithConcurrency caps the number of goroutines GetAll fans out across.
// Zero or negative means uncapped, one fetch goroutine per listed name.
func WithConcurrency(n int) Option {
	return func(o *Options) { o.Concurrency = n }
}
