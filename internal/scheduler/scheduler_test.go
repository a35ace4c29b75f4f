package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	authdomain "github.com/billfold/billfold/internal/auth/domain"
	authservice "github.com/billfold/billfold/internal/auth/service"
	"github.com/billfold/billfold/internal/clock"
	invoicedomain "github.com/billfold/billfold/internal/invoice/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestScheduler(t *testing.T, clk *clock.FakeClock) (*Scheduler, *gorm.DB) {
	t.Helper()

	dbConn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	err = dbConn.AutoMigrate(
		&authdomain.User{},
		&authdomain.Session{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	users := authservice.NewService(authservice.Params{DB: dbConn, Log: zap.NewNop(), GenID: node})

	sched, err := New(Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		Clock: clk,
		Users: users,
	})
	if err != nil {
		t.Fatalf("failed to build scheduler: %v", err)
	}
	return sched, dbConn
}

func seedInvoice(t *testing.T, dbConn *gorm.DB, id int64, status invoicedomain.Status, due time.Time) {
	t.Helper()
	err := dbConn.Create(&invoicedomain.Invoice{
		ID:            snowflake.ID(id),
		InvoiceNumber: fmt.Sprintf("INV-20260201-%04d", id),
		CustomerID:    snowflake.ID(7),
		TotalAmount:   8800,
		Status:        status,
		DueDate:       due,
	}).Error
	if err != nil {
		t.Fatalf("failed to seed invoice: %v", err)
	}
}

func TestSweepFlipsPastDueInvoices(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	sched, dbConn := newTestScheduler(t, clk)

	seedInvoice(t, dbConn, 1, invoicedomain.StatusPending, clk.Now().AddDate(0, 0, -3))
	seedInvoice(t, dbConn, 2, invoicedomain.StatusPending, clk.Now().AddDate(0, 0, 3))
	seedInvoice(t, dbConn, 3, invoicedomain.StatusPaid, clk.Now().AddDate(0, 0, -3))

	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}

	var statuses []invoicedomain.Status
	if err := dbConn.Model(&invoicedomain.Invoice{}).Order("id ASC").Pluck("status", &statuses).Error; err != nil {
		t.Fatalf("failed to read statuses: %v", err)
	}
	want := []invoicedomain.Status{
		invoicedomain.StatusOutstanding,
		invoicedomain.StatusPending,
		invoicedomain.StatusPaid,
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("invoice %d: expected %s, got %s", i+1, want[i], statuses[i])
		}
	}
}

func TestSweepRemindsOncePerDay(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	sched, dbConn := newTestScheduler(t, clk)

	seedInvoice(t, dbConn, 1, invoicedomain.StatusOutstanding, clk.Now().AddDate(0, 0, -3))

	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}

	var invoice invoicedomain.Invoice
	if err := dbConn.First(&invoice, "id = ?", 1).Error; err != nil {
		t.Fatalf("failed to reload invoice: %v", err)
	}
	if invoice.ReminderCount != 1 {
		t.Fatalf("expected 1 reminder today, got %d", invoice.ReminderCount)
	}

	// The next day earns a fresh reminder.
	clk.Advance(24 * time.Hour)
	if err := sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("next-day sweep failed: %v", err)
	}
	if err := dbConn.First(&invoice, "id = ?", 1).Error; err != nil {
		t.Fatalf("failed to reload invoice: %v", err)
	}
	if invoice.ReminderCount != 2 {
		t.Fatalf("expected 2 reminders, got %d", invoice.ReminderCount)
	}
}
