package ctxlogger

import (
	"context"

	"github.com/smallbiznis/portalsync/internal/orgcontext"
	"github.com/smallbiznis/portalsync/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FromContext returns the global logger enriched with request metadata.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext enriches the provided logger using metadata in the context:
// correlation id, tenant scope and tracing identifiers.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	fields := make([]zap.Field, 0, 6)
	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		fields = append(fields, zap.String("correlation_id", cid))
	}
	if tenantID, ok := orgcontext.TenantIDFromContext(ctx); ok {
		fields = append(fields, zap.String("tenant_id", tenantID.String()))
	}
	if operatorID, ok := orgcontext.OperatorIDFromContext(ctx); ok {
		fields = append(fields, zap.String("operator_id", operatorID.String()))
		if orgcontext.Impersonating(ctx) {
			fields = append(fields, zap.Bool("impersonating", true))
		}
	}
	fields = append(fields, ExtractTrace(ctx)...)

	return base.With(fields...)
}

// ExtractTrace pulls tracing identifiers from the context span.
func ExtractTrace(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}

	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}
