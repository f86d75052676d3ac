package bonjour

import (
	"log/slog"
	"time"
)

// DefaultPollInterval bounds how long a runner waits on the provider
// before it re-checks whether it has been stopped.
const DefaultPollInterval = time.Second

type options struct {
	logger       *slog.Logger
	pollInterval time.Duration
	tracer       Tracer
}

// Option configures an entity.
type Option func(*options)

// WithLogger sets the logger entities report through. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithPollInterval sets the runner's wait granularity.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithTracer installs a Tracer, e.g. the prometheus one from internal/metrics.
func WithTracer(t Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		tracer:       nopTracer{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
