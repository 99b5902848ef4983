package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequestsTotal    = "scheduler.requests.total"
	metricRequestDuration  = "scheduler.request.duration.seconds"
	metricErrorsTotal      = "scheduler.errors.total"
	metricInflightRequests = "scheduler.inflight.requests"

	attrOp     = "op"
	attrStatus = "status"

	statusError = "error"
)

// durationBucketBoundaries covers 10ms to 60s, matching the backend/transfer
// call latencies the scheduler's own requests are gated by.
var durationBucketBoundaries = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// REDMetrics holds the OTel instruments for Rate, Error, Duration metrics,
// recorded through RecordRequest and TrackInflight. Neither the HTTP front
// end's handlers nor the backend client call these.
type REDMetrics struct {
	requestsTotal    metric.Int64Counter
	requestDuration  metric.Float64Histogram
	errorsTotal      metric.Int64Counter
	inflightRequests metric.Int64UpDownCounter
}

// NewREDMetrics creates RED metric instruments from the given meter.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	b := newMetricBuilder(mt)

	rm := &REDMetrics{
		requestsTotal:    b.counter(metricRequestsTotal, "Total number of requests", "{request}"),
		requestDuration:  b.histogram(metricRequestDuration, "Request duration in seconds", "s", durationBucketBoundaries...),
		errorsTotal:      b.counter(metricErrorsTotal, "Total number of errors", "{error}"),
		inflightRequests: b.upDownCounter(metricInflightRequests, "Number of in-flight requests", "{request}"),
	}
	if b.err != nil {
		return nil, b.err
	}

	return rm, nil
}

// RecordRequest records a completed request with its operation, status, and duration.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	rm.requestsTotal.Add(ctx, 1, attrs)
	rm.requestDuration.Record(ctx, duration.Seconds(), attrs)

	if status == statusError {
		rm.errorsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(attrOp, op),
		))
	}
}

// TrackInflight increments the in-flight gauge and returns a function to decrement it.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflightRequests.Add(ctx, 1, attrs)

	return func() {
		rm.inflightRequests.Add(ctx, -1, attrs)
	}
}

const (
	metricPendingTasks      = "scheduler.pending_tasks"
	metricQueueError        = "scheduler.queue_error.seconds"
	metricTransferDuration  = "scheduler.transfer.duration.seconds"
	metricPredictorUpdates  = "scheduler.predictor.updates.total"
	metricEndpointsDeadness = "scheduler.endpoint.dead"

	attrEndpoint = "endpoint_id"
	attrKind     = "kind"
)

// SchedulerMetrics holds the scheduler-core-specific OTel instruments: pending
// task depth and queue-error per endpoint, transfer durations, and predictor
// update counts.
type SchedulerMetrics struct {
	pendingTasks     metric.Int64UpDownCounter
	queueError       metric.Float64Histogram
	transferDuration metric.Float64Histogram
	predictorUpdates metric.Int64Counter
	endpointDead     metric.Int64UpDownCounter
}

// NewSchedulerMetrics creates the scheduler-domain instruments from the
// given meter.
func NewSchedulerMetrics(mt metric.Meter) (*SchedulerMetrics, error) {
	b := newMetricBuilder(mt)

	sm := &SchedulerMetrics{
		pendingTasks:     b.upDownCounter(metricPendingTasks, "Tasks currently pending at an endpoint", "{task}"),
		queueError:       b.histogram(metricQueueError, "Signed queue-delay correction per endpoint", "s"),
		transferDuration: b.histogram(metricTransferDuration, "Observed bulk-transfer duration", "s", durationBucketBoundaries...),
		predictorUpdates: b.counter(metricPredictorUpdates, "Predictor update calls, by kind", "{update}"),
		endpointDead:     b.upDownCounter(metricEndpointsDeadness, "1 while an endpoint is considered dead by the watchdog, else 0", "{endpoint}"),
	}
	if b.err != nil {
		return nil, b.err
	}

	return sm, nil
}

// TaskEnqueued records a task entering an endpoint's pending set.
func (sm *SchedulerMetrics) TaskEnqueued(ctx context.Context, endpointID string) {
	sm.pendingTasks.Add(ctx, 1, metric.WithAttributes(attribute.String(attrEndpoint, endpointID)))
}

// TaskCompleted records a task leaving an endpoint's pending set.
func (sm *SchedulerMetrics) TaskCompleted(ctx context.Context, endpointID string) {
	sm.pendingTasks.Add(ctx, -1, metric.WithAttributes(attribute.String(attrEndpoint, endpointID)))
}

// RecordQueueError records the signed queue-delay correction for an endpoint.
func (sm *SchedulerMetrics) RecordQueueError(ctx context.Context, endpointID string, errorSeconds float64) {
	sm.queueError.Record(ctx, errorSeconds, metric.WithAttributes(attribute.String(attrEndpoint, endpointID)))
}

// RecordTransferDuration records one completed bulk transfer's elapsed time.
func (sm *SchedulerMetrics) RecordTransferDuration(ctx context.Context, srcGroup, dstGroup string, elapsed time.Duration) {
	sm.transferDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("src_group", srcGroup),
		attribute.String("dst_group", dstGroup),
	))
}

// RecordPredictorUpdate increments the update counter for a predictor kind
// ("runtime" or "transfer").
func (sm *SchedulerMetrics) RecordPredictorUpdate(ctx context.Context, kind string) {
	sm.predictorUpdates.Add(ctx, 1, metric.WithAttributes(attribute.String(attrKind, kind)))
}

// SetEndpointDead records a watchdog-observed alive<->dead transition for
// endpointID. Call only on transition, not on every watchdog tick, or the
// up-down counter double-counts.
func (sm *SchedulerMetrics) SetEndpointDead(ctx context.Context, endpointID string, dead bool) {
	delta := int64(-1)
	if dead {
		delta = 1
	}

	sm.endpointDead.Add(ctx, delta, metric.WithAttributes(attribute.String(attrEndpoint, endpointID)))
}
