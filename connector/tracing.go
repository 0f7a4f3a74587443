package connector

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// startSpan opens a span around one outbound call, generalizing
// cmd/agentflow/middleware.go's OTelTracing from an HTTP-request span to a
// Model Connector call span: same tracer-start/attribute/End shape, traced
// under a connector-scoped tracer name instead of "agentflow/http".
func startSpan(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	tracer := otel.Tracer("evalcore/connector")
	return tracer.Start(ctx, "connector.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("connector.provider", provider),
			attribute.String("connector.model", model),
		),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
