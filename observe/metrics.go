// Package observe holds the service's OpenTelemetry metrics and tracing,
// trace-aware logging and the gin middleware that ties them together.
//
// Metrics go through the OTel API and are exposed for scraping by the
// Prometheus exporter set up in [InitProvider]. Tests should build their own
// instruments with [NewMetrics] on a private MeterProvider.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/neurlang/fakevoice"

// Pipeline stage names recorded on StageDuration.
const (
	StageDecode    = "decode"
	StageInference = "inference"
	StageSummary   = "summary"
	StagePlots     = "plots"
	StageReport    = "report"
	StageStore     = "store"
)

// Metrics holds the metric instruments. The OTel types are safe for
// concurrent use.
type Metrics struct {
	// StageDuration is per pipeline stage latency. Attribute: stage.
	StageDuration metric.Float64Histogram

	// Analyses counts finished analyses. Attributes: format, status.
	Analyses metric.Int64Counter

	// FakeScore is the distribution of reported fake percentages.
	FakeScore metric.Float64Histogram

	// InFlight is the number of analyses currently running.
	InFlight metric.Int64UpDownCounter

	// HTTPRequestDuration is HTTP latency. Attributes: method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

var scoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.StageDuration, err = m.Float64Histogram("fakevoice.stage.duration",
		metric.WithDescription("Latency of one analysis pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Analyses, err = m.Int64Counter("fakevoice.analyses",
		metric.WithDescription("Total analyses by input format and status."),
	); err != nil {
		return nil, err
	}
	if met.FakeScore, err = m.Float64Histogram("fakevoice.fake_percentage",
		metric.WithDescription("Reported fake percentage per analysis."),
		metric.WithUnit("%"),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InFlight, err = m.Int64UpDownCounter("fakevoice.analyses.in_flight",
		metric.WithDescription("Number of analyses currently running."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("fakevoice.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns metrics on the global MeterProvider, created on
// first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordStage records how long stage took since start.
func (m *Metrics) RecordStage(ctx context.Context, stage string, start time.Time) {
	m.StageDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// RecordAnalysis counts one finished analysis and, on success, its score.
func (m *Metrics) RecordAnalysis(ctx context.Context, format string, fakePct float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Analyses.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("format", format),
			attribute.String("status", status),
		),
	)
	if err == nil {
		m.FakeScore.Record(ctx, fakePct)
	}
}
