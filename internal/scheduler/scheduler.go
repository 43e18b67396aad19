package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/portalsync/internal/clock"
	invoicedomain "github.com/smallbiznis/portalsync/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/portalsync/internal/observability/metrics"
	"github.com/smallbiznis/portalsync/internal/orgcontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobDeadlineScan = "deadline_scan"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	InvoiceSvc invoicedomain.Service
	Scanner    *DeadlineScanner
	Locker     *Locker `optional:"true"`
	Config     Config  `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	cfg        Config
	genID      *snowflake.Node
	clock      clock.Clock
	invoiceSvc invoicedomain.Service
	scanner    *DeadlineScanner
	locker     *Locker
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.InvoiceSvc == nil || p.Scanner == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		genID:      p.GenID,
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
		scanner:    p.Scanner,
		locker:     p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// a deadline is a soft timeout; the next tick picks up the rest
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// ScanTenant runs the deadline scan for one tenant under a per-day lease.
// A scan already running elsewhere for the same tenant is skipped.
func (s *Scheduler) ScanTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	if tenantID == uuid.Nil {
		return 0, invoicedomain.ErrInvalidTenant
	}
	ctx = orgcontext.WithTenantID(ctx, tenantID)

	if s.locker != nil {
		key := deadlineScanLockKey(tenantID, s.clock.Now().In(s.scanner.tuning.Get().Location()))
		token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		switch {
		case err != nil:
			s.logger(ctx).Warn("deadline scan lock unavailable, scanning unlocked", zap.Error(err))
		case !ok:
			obsmetrics.Scheduler().IncBatchDeferred(jobDeadlineScan, obsmetrics.SchedulerBatchDeferredReasonLockHeld)
			s.logger(ctx).Debug("deadline scan already running", zap.String("lock_key", key))
			return 0, nil
		default:
			defer func() {
				if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
					s.logger(ctx).Warn("deadline scan lock release failed", zap.Error(err))
				}
			}()
		}
	}

	created, err := s.scanner.ScanTenant(ctx)
	obsmetrics.Scheduler().AddBatchProcessed(jobDeadlineScan, "notification", created)
	return created, err
}

// DeadlineScanJob scans every tenant that still owes an invoice.
func (s *Scheduler) DeadlineScanJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	tenants, err := s.invoiceSvc.TenantsWithUnpaid(ctx)
	if err != nil {
		return err
	}

	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			return err
		}
		created, err := s.ScanTenant(ctx, tenantID)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				return err
			}
			s.logSchedulerError(ctx, run, "scheduler.deadline_scan.tenant_failed", jobDeadlineScan, tenantID, err)
			continue
		}
		run.AddProcessed(created)
	}
	return nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, jobDeadlineScan, 0, s.cfg.ScanTimeout, s.DeadlineScanJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if runLag := s.clock.Now().Sub(nextRun); runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}
