package pipeline

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/loqalabs/loqa-converse/internal/pipeline"

type instruments struct {
	tracer  trace.Tracer
	queued  metric.Int64Counter
	played  metric.Int64Counter
	failed  metric.Int64Counter
	latency metric.Float64Histogram
	turns   metric.Int64Counter
}

func newInstruments() instruments {
	meter := otel.Meter(instrumentationName)
	fallback := noop.NewMeterProvider().Meter(instrumentationName)

	ins := instruments{tracer: otel.Tracer(instrumentationName)}
	var err error
	if ins.queued, err = meter.Int64Counter("converse.chunks.queued", metric.WithDescription("Chunks handed to the synthesis worker")); err != nil {
		ins.queued, _ = fallback.Int64Counter("converse.chunks.queued")
	}
	if ins.played, err = meter.Int64Counter("converse.chunks.played", metric.WithDescription("Chunks synthesized and played")); err != nil {
		ins.played, _ = fallback.Int64Counter("converse.chunks.played")
	}
	if ins.failed, err = meter.Int64Counter("converse.chunks.failed", metric.WithDescription("Chunks skipped after a synthesis or playback error")); err != nil {
		ins.failed, _ = fallback.Int64Counter("converse.chunks.failed")
	}
	if ins.latency, err = meter.Float64Histogram("converse.synthesis.latency", metric.WithUnit("ms")); err != nil {
		ins.latency, _ = fallback.Float64Histogram("converse.synthesis.latency")
	}
	if ins.turns, err = meter.Int64Counter("converse.turns", metric.WithDescription("Turns by outcome")); err != nil {
		ins.turns, _ = fallback.Int64Counter("converse.turns")
	}
	return ins
}
