// Package telemetry wires the replication engine's update and dispatch
// loops into OpenTelemetry tracing: an Init that installs a TracerProvider
// (returning a shutdown func), a package-level tracer, and a thin
// StartSpan helper so call sites don't import the SDK directly. Sampling
// is selectable between ratio, always, and never; no exporter is wired,
// so with tracing disabled the SDK's no-op span recorder is used.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/JeffM2501/EntityNetwork"

// Config selects sampling behavior. A SampleRate of 0 disables tracing
// (NeverSample); 1 traces every tick (AlwaysSample); anything in between is
// ratio-based.
type Config struct {
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
}

var (
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer = otel.Tracer(instrumentationName)
)

// Init installs a TracerProvider sampling at cfg.SampleRate and returns a
// shutdown function the host should defer. Spans are recorded in-process
// (no exporter attached) until a host wires one in.
func Init(cfg Config) (shutdown func(context.Context) error) {
	mu.Lock()
	defer mu.Unlock()

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate <= 0:
		sampler = sdktrace.NeverSample()
	case cfg.SampleRate >= 1:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	provider = sdktrace.NewTracerProvider(sdktrace.WithSampler(sampler))
	otel.SetTracerProvider(provider)
	tracer = provider.Tracer(instrumentationName)

	return provider.Shutdown
}

// StartSpan opens a span named name on ctx (or context.Background() if nil)
// using the package-level tracer, returning the child context and an end
// function the caller defers.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}

// Common span attribute keys for engine operations.
const (
	AttrPeerID     = "entnet.peer_id"
	AttrEntityID   = "entnet.entity_id"
	AttrCommand    = "entnet.command"
	AttrRPC        = "entnet.rpc"
	AttrDirtyCount = "entnet.dirty_count"
)
