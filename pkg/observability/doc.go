// Package observability provides OpenTelemetry tracing and RED metrics for
// the ledger service.
//
// Initialize at application startup:
//
//	provider, err := observability.New(ctx, observability.DefaultConfig())
//	defer provider.Shutdown(ctx)
//
// Wrap the API router to trace and record every request:
//
//	http.Handle("/", provider.Middleware(router))
//
// Create spans manually for a specific operation:
//
//	ctx, span := provider.StartSpan(ctx, "operation_name")
//	defer span.End()
package observability
