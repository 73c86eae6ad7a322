// Package metrics registers dwell's OpenTelemetry instruments on the global
// meter provider. Without an SDK installed the provider is a no-op, so
// recording is always safe.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	flushesTotal   metric.Int64Counter
	flushDuration  metric.Float64Histogram
	eventsIngested metric.Int64Counter
	reportBuild    metric.Float64Histogram
	aiCalls        metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/thebtf/dwell")

	flushesTotal, _ = meter.Int64Counter("dwell.tracker.flushes",
		metric.WithDescription("Dwell-time flushes recorded into the day bucket store"))
	flushDuration, _ = meter.Float64Histogram("dwell.tracker.flush_duration_ms",
		metric.WithDescription("Dwell time recorded per flush, in milliseconds"))
	eventsIngested, _ = meter.Int64Counter("dwell.history.events_ingested",
		metric.WithDescription("Navigation events accepted into the history mirror"))
	reportBuild, _ = meter.Float64Histogram("dwell.report.build_ms",
		metric.WithDescription("Reconciliation engine build time, in milliseconds"))
	aiCalls, _ = meter.Int64Counter("dwell.ai.calls",
		metric.WithDescription("Summarization collaborator calls by kind and outcome"))
}

// RecordFlush records one tracker flush.
func RecordFlush(ctx context.Context, d time.Duration) {
	flushesTotal.Add(ctx, 1)
	flushDuration.Record(ctx, float64(d.Milliseconds()))
}

// RecordIngest records navigation events accepted into the mirror.
func RecordIngest(ctx context.Context, n int64) {
	eventsIngested.Add(ctx, n)
}

// RecordReportBuild records one reconciliation run.
func RecordReportBuild(ctx context.Context, d time.Duration) {
	reportBuild.Record(ctx, float64(d.Milliseconds()))
}

// RecordAICall records one summarizer call outcome.
func RecordAICall(ctx context.Context, kind string, success bool) {
	aiCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("success", success),
	))
}
