package ctxlogger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/orgcontext"
	"github.com/smallbiznis/portalsync/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsScopeFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	operator := uuid.New()
	tenant := uuid.New()
	ctx := orgcontext.WithOperatorID(context.Background(), operator)
	ctx = orgcontext.WithTenantID(ctx, tenant)
	ctx = correlation.ContextWithCorrelationID(ctx, "cid-1")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, tenant.String(), fields["tenant_id"])
		assert.Equal(t, operator.String(), fields["operator_id"])
		assert.Equal(t, "cid-1", fields["correlation_id"])
		assert.Equal(t, true, fields["impersonating"])
	}
}
