// Package scheduler runs the overdue-invoice sweep: pending invoices
// past their due date become outstanding, and outstanding invoices get
// at most one reminder per UTC day.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	authdomain "github.com/billfold/billfold/internal/auth/domain"
	"github.com/billfold/billfold/internal/clock"
	"github.com/billfold/billfold/internal/config"
	invoicedomain "github.com/billfold/billfold/internal/invoice/domain"
	"github.com/billfold/billfold/internal/notification"
	"github.com/billfold/billfold/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const overdueLockKey = "billfold:scheduler:overdue"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
	Users   authdomain.Service
	Sink    notification.Sink `optional:"true"`
	Metrics *metrics.Metrics  `optional:"true"`
	Locker  *Locker           `optional:"true"`
	Config  Config            `optional:"true"`
}

type Scheduler struct {
	db      *gorm.DB
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	billing *config.BillingConfigHolder
	users   authdomain.Service
	sink    notification.Sink
	metrics *metrics.Metrics
	locker  *Locker
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Users == nil {
		return nil, errors.New("scheduler: missing dependency")
	}
	return &Scheduler{
		db:      p.DB,
		log:     p.Log.Named("scheduler"),
		cfg:     p.Config.withDefaults(),
		clock:   p.Clock,
		billing: p.Billing,
		users:   p.Users,
		sink:    p.Sink,
		metrics: p.Metrics,
		locker:  p.Locker,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, overdueLockKey, s.cfg.RunInterval)
		if err != nil {
			return err
		}
		if !ok {
			// Another instance holds the sweep.
			return nil
		}
		defer func() {
			if err := s.locker.Release(context.WithoutCancel(ctx), overdueLockKey, token); err != nil {
				s.log.Warn("failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	return s.OverdueSweepJob(ctx)
}

func (s *Scheduler) OverdueSweepJob(ctx context.Context) error {
	now := s.clock.Now().UTC()

	if err := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Where("status = ? AND due_date < ?", invoicedomain.StatusPending, now).
		Update("status", invoicedomain.StatusOutstanding).Error; err != nil {
		return err
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var due []invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Where("status = ? AND (last_reminder_at IS NULL OR last_reminder_at < ?)",
			invoicedomain.StatusOutstanding, dayStart).
		Order("due_date ASC").
		Limit(s.cfg.BatchSize).
		Find(&due).Error
	if err != nil {
		return err
	}

	var errs error
	for _, invoice := range due {
		if err := s.remind(ctx, invoice, now); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func (s *Scheduler) remind(ctx context.Context, invoice invoicedomain.Invoice, now time.Time) error {
	// Stamp first, so a notification failure cannot turn into a
	// reminder storm on the next tick.
	res := s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Where("id = ? AND (last_reminder_at IS NULL OR last_reminder_at < ?)",
			invoice.ID,
			time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)).
		Updates(map[string]any{
			"reminder_count":   gorm.Expr("reminder_count + 1"),
			"last_reminder_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	s.metrics.IncReminderSent()
	s.notifyReminder(ctx, invoice)
	return nil
}

func (s *Scheduler) notifyReminder(ctx context.Context, invoice invoicedomain.Invoice) {
	if s.sink == nil {
		return
	}
	user, err := s.users.GetUser(ctx, invoice.CustomerID)
	if err != nil {
		s.log.Warn("cannot send overdue reminder",
			zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
		return
	}
	currency := "USD"
	if s.billing != nil {
		currency = s.billing.Get().Currency
	}
	notification.Dispatch(ctx, s.sink, s.log, notification.Message{
		Recipient: user.Email,
		Channel:   notification.ChannelEmail,
		Template:  notification.TemplateOverdueReminder,
		Payload: map[string]any{
			"display_name":   user.DisplayName,
			"invoice_number": invoice.InvoiceNumber,
			"amount":         fmt.Sprintf("%d.%02d %s", invoice.TotalAmount/100, invoice.TotalAmount%100, currency),
			"due_date":       invoice.DueDate.Format("2006-01-02"),
		},
	})
}
