// Package observability provides OpenTelemetry tracing and metrics, SLI/SLO
// tracking, and an in-process audit timeline for repomesh-core's six
// entry-point predicates.
//
// # Tracing and metrics
//
// Initialize a Provider at process startup:
//
//	p, err := observability.New(ctx, &observability.Config{
//		ServiceName:  "repomesh-core",
//		OTLPEndpoint: "otel-collector:4317",
//		SampleRate:   0.1, // 10% sampling in production
//	})
//	defer p.Shutdown(ctx)
//
// Track an operation end-to-end (span + RED metrics):
//
//	ctx, finish := p.TrackOperation(ctx, "verifyRelease", observability.EventOperation(...)...)
//	defer finish(err)
//
// # SLIs, SLOs, and the audit timeline
//
// SLIRegistry/SLOTracker and AuditTimeline are in-process, best-effort read
// models over the operations the core performs — they never gate or
// influence admission, which remains governed entirely by pkg/eventlog.
package observability
