// Package analytics records per-call and per-run metrics. The engine only
// depends on the Sink interface; the default implementation exports
// OpenTelemetry instruments.
package analytics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// APICall describes one outbound LLM call.
type APICall struct {
	RequestID string
	ModelID   string
	Action    string
	TokensIn  int
	TokensOut int
	Duration  time.Duration
	Status    string
}

// Completion describes one finished refinement run.
type Completion struct {
	EntryID             string
	Duration            time.Duration
	Iterations          int
	FeaturesImplemented int
}

// Quality carries the per-iteration heuristic scores.
type Quality struct {
	EntryID    string
	Iteration  int
	Score      float64
	Complexity float64
}

// Sink accepts engine metrics. Implementations must be safe for concurrent use.
type Sink interface {
	LogAPICall(ctx context.Context, call APICall)
	LogCompletion(ctx context.Context, completion Completion)
	LogQuality(ctx context.Context, quality Quality)
}

// OTelSink exports metrics through an OpenTelemetry meter.
type OTelSink struct {
	apiCalls     metric.Int64Counter
	tokensIn     metric.Int64Counter
	tokensOut    metric.Int64Counter
	callDuration metric.Float64Histogram
	runDuration  metric.Float64Histogram
	iterations   metric.Int64Histogram
	features     metric.Int64Counter
	quality      metric.Float64Histogram
}

// NewOTelSink creates a sink on the global meter provider.
func NewOTelSink() (*OTelSink, error) {
	meter := otel.Meter("adversarial-mcp/refinement")

	s := &OTelSink{}
	var err error
	if s.apiCalls, err = meter.Int64Counter("llm.api.calls",
		metric.WithDescription("Outbound LLM calls by model, action and status")); err != nil {
		return nil, err
	}
	if s.tokensIn, err = meter.Int64Counter("llm.api.tokens.in",
		metric.WithDescription("Approximate prompt tokens sent")); err != nil {
		return nil, err
	}
	if s.tokensOut, err = meter.Int64Counter("llm.api.tokens.out",
		metric.WithDescription("Approximate completion tokens received")); err != nil {
		return nil, err
	}
	if s.callDuration, err = meter.Float64Histogram("llm.api.duration",
		metric.WithDescription("LLM call duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if s.runDuration, err = meter.Float64Histogram("refinement.run.duration",
		metric.WithDescription("Refinement run duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if s.iterations, err = meter.Int64Histogram("refinement.run.iterations",
		metric.WithDescription("Iterations consumed per run")); err != nil {
		return nil, err
	}
	if s.features, err = meter.Int64Counter("refinement.features.implemented",
		metric.WithDescription("Features applied across runs")); err != nil {
		return nil, err
	}
	if s.quality, err = meter.Float64Histogram("refinement.code.quality",
		metric.WithDescription("Heuristic code-quality score per iteration")); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *OTelSink) LogAPICall(ctx context.Context, call APICall) {
	attrs := metric.WithAttributes(
		attribute.String("model_id", call.ModelID),
		attribute.String("action", call.Action),
		attribute.String("status", call.Status),
	)
	s.apiCalls.Add(ctx, 1, attrs)
	s.tokensIn.Add(ctx, int64(call.TokensIn), attrs)
	s.tokensOut.Add(ctx, int64(call.TokensOut), attrs)
	s.callDuration.Record(ctx, call.Duration.Seconds(), attrs)
}

func (s *OTelSink) LogCompletion(ctx context.Context, completion Completion) {
	s.runDuration.Record(ctx, completion.Duration.Seconds())
	s.iterations.Record(ctx, int64(completion.Iterations))
	if completion.FeaturesImplemented > 0 {
		s.features.Add(ctx, int64(completion.FeaturesImplemented))
	}
}

func (s *OTelSink) LogQuality(ctx context.Context, quality Quality) {
	s.quality.Record(ctx, quality.Score)
}

// NopSink discards all metrics. Intended for tests and the CLI.
type NopSink struct{}

func (NopSink) LogAPICall(context.Context, APICall)       {}
func (NopSink) LogCompletion(context.Context, Completion) {}
func (NopSink) LogQuality(context.Context, Quality)       {}

var (
	_ Sink = (*OTelSink)(nil)
	_ Sink = NopSink{}
)
