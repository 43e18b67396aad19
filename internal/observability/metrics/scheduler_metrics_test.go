package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/portalsync/internal/authorization"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SchedulerJobReasonDeadlineExceeded},
		{name: "forbidden", err: authorization.ErrForbidden, want: SchedulerJobReasonForbidden},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: SchedulerJobReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: SchedulerJobReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: SchedulerJobReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: SchedulerJobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{ServiceName: "portalsync", Environment: "test"})

	metrics.AddBatchProcessed("deadline_scan", "invoices", 3)
	metrics.AddBatchProcessed("deadline_scan", "invoices", 0)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("deadline_scan", "invoices"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestPortalMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newPortalMetrics(registry, Config{Environment: "test"})

	metrics.IncAdmission("live", AdmissionAdmitted)
	metrics.IncAdmission("live", AdmissionDroppedIdentity)
	metrics.IncAdmission("live", AdmissionDroppedIdentity)
	metrics.IncDispatch("update_status", DispatchFailed)

	if got := testutil.ToFloat64(metrics.admissions.WithLabelValues("live", AdmissionDroppedIdentity)); got != 2 {
		t.Fatalf("expected 2 identity drops, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.dispatches.WithLabelValues("update_status", DispatchFailed)); got != 1 {
		t.Fatalf("expected 1 failed dispatch, got %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var portal *PortalMetrics
	portal.IncAdmission("live", AdmissionAdmitted)
	portal.IncOptimisticRollback("mark_read")

	var scheduler *SchedulerMetrics
	scheduler.IncJobRun("deadline_scan")
	scheduler.IncJobError("deadline_scan", errors.New("boom"))
}
