package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Tracer returns a tracer for the given name
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartSpan starts a new span from context
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name, opts...)
}

// StartServiceSpan starts a span for service operations
func StartServiceSpan(ctx context.Context, service, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s.%s", service, operation),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("service.component", service),
			attribute.String("service.operation", operation),
		),
	)
}

// StartClientSpan starts a span for outbound calls to a dependency
func StartClientSpan(ctx context.Context, peer, operation string) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("%s %s", peer, operation),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("peer.service", peer),
			attribute.String("rpc.method", operation),
		),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span
func AddEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// ProofingMetrics holds the proofing business counters. A nil
// *ProofingMetrics is valid and records nothing.
type ProofingMetrics struct {
	replacementsDetected metric.Int64Counter
	digestsSent          metric.Int64Counter
	digestsFailed        metric.Int64Counter
	sessionsCreated      metric.Int64Counter
	reconcileRuns        metric.Int64Counter
}

// NewProofingMetrics creates the business metric instruments
func NewProofingMetrics() (*ProofingMetrics, error) {
	meter := otel.Meter(instrumentationName)

	replacementsDetected, err := meter.Int64Counter(
		"proofing.replacements.detected",
		metric.WithDescription("Edited images mapped onto a new or different original"),
		metric.WithUnit("{replacements}"),
	)
	if err != nil {
		return nil, err
	}

	digestsSent, err := meter.Int64Counter(
		"proofing.digests.sent",
		metric.WithDescription("Edited-images digests delivered"),
		metric.WithUnit("{emails}"),
	)
	if err != nil {
		return nil, err
	}

	digestsFailed, err := meter.Int64Counter(
		"proofing.digests.failed",
		metric.WithDescription("Edited-images digests that could not be delivered"),
		metric.WithUnit("{emails}"),
	)
	if err != nil {
		return nil, err
	}

	sessionsCreated, err := meter.Int64Counter(
		"proofing.sessions.created",
		metric.WithDescription("Magic-link sessions created"),
		metric.WithUnit("{sessions}"),
	)
	if err != nil {
		return nil, err
	}

	reconcileRuns, err := meter.Int64Counter(
		"proofing.reconciler.runs",
		metric.WithDescription("Reconciler passes, by outcome"),
		metric.WithUnit("{runs}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProofingMetrics{
		replacementsDetected: replacementsDetected,
		digestsSent:          digestsSent,
		digestsFailed:        digestsFailed,
		sessionsCreated:      sessionsCreated,
		reconcileRuns:        reconcileRuns,
	}, nil
}

// RecordReplacement records a created or changed replacement
func (m *ProofingMetrics) RecordReplacement(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.replacementsDetected.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordDigest records one digest delivery attempt for an album
func (m *ProofingMetrics) RecordDigest(ctx context.Context, albumID int64, success bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AlbumID(albumID))
	if success {
		m.digestsSent.Add(ctx, 1, attrs)
		return
	}
	m.digestsFailed.Add(ctx, 1, attrs)
}

// RecordSessionCreated records a new session
func (m *ProofingMetrics) RecordSessionCreated(ctx context.Context, anonymous bool) {
	if m == nil {
		return
	}
	m.sessionsCreated.Add(ctx, 1, metric.WithAttributes(attribute.Bool("anonymous", anonymous)))
}

// RecordReconcileRun records a reconciler pass
func (m *ProofingMetrics) RecordReconcileRun(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.reconcileRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
