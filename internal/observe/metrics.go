// Package observe holds the OpenTelemetry metric instruments for the
// service and the Prometheus bridge that exposes them on /metrics.
//
// All recording helpers are nil-safe so components can be built without
// metrics in tests.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/auralis/api"

// Metrics holds all metric instruments for the application.
type Metrics struct {
	// UpstreamRequests counts calls to the generation service by
	// operation ("create", "get") and outcome.
	UpstreamRequests metric.Int64Counter

	// UpstreamDuration tracks generation service latency by operation.
	UpstreamDuration metric.Float64Histogram

	// RelayBytes counts audio bytes forwarded to clients by mode.
	RelayBytes metric.Int64Counter

	// RelayFailures counts relay fetches that failed before streaming began.
	RelayFailures metric.Int64Counter

	// PollsThrottled counts status polls rejected by the minimum interval.
	PollsThrottled metric.Int64Counter

	// HTTPRequestDuration tracks inbound request processing time.
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.UpstreamRequests, err = m.Int64Counter("auralis.upstream.requests",
		metric.WithDescription("Generation service requests by operation and outcome."),
	); err != nil {
		return nil, err
	}
	if met.UpstreamDuration, err = m.Float64Histogram("auralis.upstream.duration",
		metric.WithDescription("Latency of generation service requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RelayBytes, err = m.Int64Counter("auralis.relay.bytes",
		metric.WithDescription("Audio bytes relayed to clients."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.RelayFailures, err = m.Int64Counter("auralis.relay.failures",
		metric.WithDescription("Relay fetches that failed before any byte was sent."),
	); err != nil {
		return nil, err
	}
	if met.PollsThrottled, err = m.Int64Counter("auralis.poll.throttled",
		metric.WithDescription("Status polls rejected for arriving too early."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("auralis.http.request.duration",
		metric.WithDescription("Inbound HTTP request duration."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordUpstream records one generation service call.
func (m *Metrics) RecordUpstream(ctx context.Context, op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
	m.UpstreamDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("op", op)))
}

// AddRelayBytes records bytes forwarded in the given relay mode.
func (m *Metrics) AddRelayBytes(ctx context.Context, mode string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RelayBytes.Add(ctx, n, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordRelayFailure records a relay fetch that never started streaming.
func (m *Metrics) RecordRelayFailure(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.RelayFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordPollThrottled records a rejected status poll.
func (m *Metrics) RecordPollThrottled(ctx context.Context) {
	if m == nil {
		return
	}
	m.PollsThrottled.Add(ctx, 1)
}

// RecordHTTPRequest records one inbound request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}
