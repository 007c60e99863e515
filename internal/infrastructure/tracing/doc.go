/*
Package tracing follows one inbound command through the Station.

Every envelope accepted by the transport server opens a span. The span's
trace id travels in the context, so the router and anything it calls can
attach it to their logs with Field. Diagnostics HTTP requests get spans
too, propagated through the X-Trace-ID header.

# Usage

	tracer := tracing.New(logger)

	// HTTP middleware
	router.Use(tracing.HTTPMiddleware(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "envelope")
	defer tracer.Submit(span)
	span.SetTag("namespace", env.Namespace)

	logger.Warn("Command failed", tracing.Field(ctx), zap.Error(err))

Completed spans are logged by a collector goroutine; a full buffer drops
spans rather than slow the caller.
*/
package tracing
