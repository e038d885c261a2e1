package neosample

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/saulfrancisco-ruizacevedo/go-neosample"

type options struct {
	logger  *Logger
	seed    uint64
	hasSeed bool
	tracer  trace.Tracer
}

// Option configures NeighborSampler construction.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger: NoopLogger(),
		tracer: otel.Tracer(instrumentationName),
	}
}

// WithLogger configures the logger used by the sampler.
// If nil is passed, logging is disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithSeed makes sampling reproducible: every Sample call draws from a random
// source seeded with seed, so equal inputs give equal subgraphs.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
		o.hasSeed = true
	}
}

// WithTracer replaces the OpenTelemetry tracer. By default the global tracer
// provider is used.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}
