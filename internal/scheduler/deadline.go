package scheduler

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/smallbiznis/portalsync/internal/clock"
	"github.com/smallbiznis/portalsync/internal/config"
	invoicedomain "github.com/smallbiznis/portalsync/internal/invoice/domain"
	notificationdomain "github.com/smallbiznis/portalsync/internal/notification/domain"
	"github.com/smallbiznis/portalsync/internal/observability/metrics"
	"github.com/smallbiznis/portalsync/pkg/log/ctxlogger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const deadlineTitleFormat = "Échéance proche (%dj)"

type DeadlineScannerParams struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Tuning     *config.SyncTuningHolder
	InvoiceSvc invoicedomain.Service
	Notifier   notificationdomain.Writer
	Metrics    *metrics.PortalMetrics `optional:"true"`
}

// DeadlineScanner turns unpaid invoices close to their due date into
// notifications for the tenant in scope.
type DeadlineScanner struct {
	log        *zap.Logger
	clock      clock.Clock
	tuning     *config.SyncTuningHolder
	invoiceSvc invoicedomain.Service
	notifier   notificationdomain.Writer
	metrics    *metrics.PortalMetrics
}

func NewDeadlineScanner(p DeadlineScannerParams) *DeadlineScanner {
	return &DeadlineScanner{
		log:        p.Log.Named("scheduler.deadline"),
		clock:      p.Clock,
		tuning:     p.Tuning,
		invoiceSvc: p.InvoiceSvc,
		notifier:   p.Notifier,
		metrics:    p.Metrics,
	}
}

// ScanTenant emits at most one notification per invoice and offset per
// calendar day. The guard is a read, so concurrent scans can still race and
// leave the duplicate to display collapse.
func (d *DeadlineScanner) ScanTenant(ctx context.Context) (int, error) {
	invoices, err := d.invoiceSvc.ListUnpaid(ctx)
	if err != nil {
		return 0, err
	}

	tuning := d.tuning.Get()
	loc := tuning.Location()
	now := d.clock.Now().In(loc)
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc).UTC()

	created := 0
	for _, inv := range invoices {
		days := daysUntil(now, inv.DueDate.In(loc))
		if !slices.Contains(tuning.DeadlineOffsets, days) {
			continue
		}

		title := fmt.Sprintf(deadlineTitleFormat, days)
		link := "/invoices/" + inv.ID.String()
		exists, err := d.notifier.ExistsSince(ctx, title, link, startOfToday)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		if _, err := d.notifier.Notify(ctx, notificationdomain.NewNotification{
			Title:    title,
			Message:  deadlineMessage(inv, loc),
			Severity: deadlineSeverity(days),
			Link:     &link,
		}); err != nil {
			return created, err
		}
		created++
		d.metrics.IncDeadlineNotification(strconv.Itoa(days))
		ctxlogger.WithContext(ctx, d.log).Info("deadline notification created",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("invoice_number", inv.Number),
			zap.Int("days", days),
		)
	}
	return created, nil
}

// daysUntil counts calendar days in the zone of now, ignoring DST shifts.
func daysUntil(now, due time.Time) int {
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

func deadlineSeverity(days int) notificationdomain.Severity {
	if days <= 1 {
		return notificationdomain.SeverityError
	}
	return notificationdomain.SeverityWarning
}

func deadlineMessage(inv invoicedomain.Invoice, loc *time.Location) string {
	return fmt.Sprintf("La facture %s de %s %s arrive à échéance le %s.",
		inv.Number,
		inv.Amount.StringFixed(2),
		inv.Currency,
		inv.DueDate.In(loc).Format("02/01/2006"),
	)
}
