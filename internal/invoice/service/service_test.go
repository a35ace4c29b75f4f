package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	authdomain "github.com/billfold/billfold/internal/auth/domain"
	authservice "github.com/billfold/billfold/internal/auth/service"
	"github.com/billfold/billfold/internal/clock"
	"github.com/billfold/billfold/internal/config"
	"github.com/billfold/billfold/internal/invoice/domain"
	paymentdomain "github.com/billfold/billfold/internal/payment/domain"
	"github.com/billfold/billfold/internal/providers/pdf"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, clk clock.Clock) domain.Service {
	t.Helper()

	dbConn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	err = dbConn.AutoMigrate(
		&authdomain.User{}, &authdomain.Session{},
		&domain.Invoice{}, &domain.InvoiceItem{},
		&paymentdomain.Payment{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	users := authservice.NewService(authservice.Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
	})

	return NewService(Params{
		DB:      dbConn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Billing: config.NewBillingConfigHolderFrom(config.DefaultBillingConfig()),
		PDF:     pdf.New(),
		Users:   users,
	})
}

func TestCreateComputesTotalsAndNumber(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestService(t, clk)
	ctx := context.Background()

	invoice, err := svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID:     snowflake.ID(7),
		TaxAmount:      800,
		DiscountAmount: 500,
		Items: []domain.ItemInput{
			{Description: "Web Hosting x2 (monthly)", Quantity: 1, UnitPrice: 8000},
		},
	})
	if err != nil {
		t.Fatalf("failed to create invoice: %v", err)
	}

	if invoice.InvoiceNumber != "INV-20260301-0001" {
		t.Fatalf("expected INV-20260301-0001, got %s", invoice.InvoiceNumber)
	}
	if invoice.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", invoice.Status)
	}
	if invoice.Subtotal != 8000 || invoice.TaxAmount != 800 || invoice.DiscountAmount != 500 {
		t.Fatalf("unexpected amounts: %+v", invoice)
	}
	if invoice.TotalAmount != 8300 {
		t.Fatalf("expected total 8300, got %d", invoice.TotalAmount)
	}

	wantDue := clk.Now().AddDate(0, 0, config.DefaultBillingConfig().DueInDays)
	if !invoice.DueDate.Equal(wantDue) {
		t.Fatalf("expected due %s, got %s", wantDue, invoice.DueDate)
	}

	second, err := svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: snowflake.ID(7),
		Items: []domain.ItemInput{
			{Description: "Domain", Quantity: 1, UnitPrice: 1500},
		},
	})
	if err != nil {
		t.Fatalf("failed to create second invoice: %v", err)
	}
	if second.InvoiceNumber != "INV-20260301-0002" {
		t.Fatalf("expected INV-20260301-0002, got %s", second.InvoiceNumber)
	}
}

func TestCreateNumberResetsNextDay(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC))
	svc := newTestService(t, clk)
	ctx := context.Background()

	first, err := svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: snowflake.ID(7),
		Items:      []domain.ItemInput{{Description: "Hosting", Quantity: 1, UnitPrice: 4000}},
	})
	if err != nil {
		t.Fatalf("failed to create: %v", err)
	}
	if first.InvoiceNumber != "INV-20260301-0001" {
		t.Fatalf("expected INV-20260301-0001, got %s", first.InvoiceNumber)
	}

	clk.Advance(2 * time.Hour)
	next, err := svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: snowflake.ID(7),
		Items:      []domain.ItemInput{{Description: "Hosting", Quantity: 1, UnitPrice: 4000}},
	})
	if err != nil {
		t.Fatalf("failed to create: %v", err)
	}
	if next.InvoiceNumber != "INV-20260302-0001" {
		t.Fatalf("expected INV-20260302-0001, got %s", next.InvoiceNumber)
	}
}

func TestCreateClampsDiscount(t *testing.T) {
	svc := newTestService(t, clock.NewSystem())

	invoice, err := svc.Create(context.Background(), domain.CreateInvoiceRequest{
		CustomerID:     snowflake.ID(7),
		TaxAmount:      100,
		DiscountAmount: 99999,
		Items: []domain.ItemInput{
			{Description: "Hosting", Quantity: 1, UnitPrice: 1000},
		},
	})
	if err != nil {
		t.Fatalf("failed to create invoice: %v", err)
	}
	if invoice.DiscountAmount != 1100 {
		t.Fatalf("expected discount clamped to 1100, got %d", invoice.DiscountAmount)
	}
	if invoice.TotalAmount != 0 {
		t.Fatalf("expected total 0, got %d", invoice.TotalAmount)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	svc := newTestService(t, clock.NewSystem())
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateInvoiceRequest{CustomerID: snowflake.ID(7)})
	if !errors.Is(err, domain.ErrEmptyItems) {
		t.Fatalf("expected ErrEmptyItems, got %v", err)
	}

	_, err = svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: snowflake.ID(7),
		Items:      []domain.ItemInput{{Description: "Hosting", Quantity: 0, UnitPrice: 1000}},
	})
	if !errors.Is(err, domain.ErrInvalidItem) {
		t.Fatalf("expected ErrInvalidItem, got %v", err)
	}
}

func TestUpdateRecomputesTotals(t *testing.T) {
	svc := newTestService(t, clock.NewSystem())
	ctx := context.Background()

	invoice, err := svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: snowflake.ID(7),
		TaxAmount:  800,
		Items: []domain.ItemInput{
			{Description: "Hosting", Quantity: 2, UnitPrice: 4000},
		},
	})
	if err != nil {
		t.Fatalf("failed to create invoice: %v", err)
	}

	updated, err := svc.Update(ctx, invoice.ID, domain.UpdateInvoiceRequest{
		Items: []domain.ItemInput{
			{Description: "Hosting", Quantity: 1, UnitPrice: 4000},
			{Description: "Backup", Quantity: 1, UnitPrice: 1000},
		},
	})
	if err != nil {
		t.Fatalf("failed to update invoice: %v", err)
	}

	if updated.Subtotal != 5000 {
		t.Fatalf("expected subtotal 5000, got %d", updated.Subtotal)
	}
	if updated.TotalAmount != 5800 {
		t.Fatalf("expected total 5800, got %d", updated.TotalAmount)
	}
	if len(updated.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(updated.Items))
	}
	if updated.InvoiceNumber != invoice.InvoiceNumber {
		t.Fatalf("invoice number must not change on update")
	}
}

func TestDeleteRemovesItems(t *testing.T) {
	svc := newTestService(t, clock.NewSystem())
	ctx := context.Background()

	invoice, err := svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: snowflake.ID(7),
		Items:      []domain.ItemInput{{Description: "Hosting", Quantity: 1, UnitPrice: 4000}},
	})
	if err != nil {
		t.Fatalf("failed to create invoice: %v", err)
	}

	if err := svc.Delete(ctx, invoice.ID); err != nil {
		t.Fatalf("failed to delete invoice: %v", err)
	}

	_, err = svc.Get(ctx, invoice.ID)
	if !errors.Is(err, domain.ErrInvoiceNotFound) {
		t.Fatalf("expected ErrInvoiceNotFound, got %v", err)
	}
}

func TestCreateConcurrentNumbersStayUnique(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := newTestService(t, clk)
	ctx := context.Background()

	const workers = 5
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(ctx, domain.CreateInvoiceRequest{
				CustomerID: snowflake.ID(7),
				Items:      []domain.ItemInput{{Description: "Hosting", Quantity: 1, UnitPrice: 4000}},
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent create failed: %v", err)
		}
	}

	invoices, err := svc.List(ctx, domain.ListInvoicesRequest{})
	if err != nil {
		t.Fatalf("failed to list invoices: %v", err)
	}
	if len(invoices) != workers {
		t.Fatalf("expected %d invoices, got %d", workers, len(invoices))
	}

	// Losers of the sequence race retry, so the day's numbers come out
	// dense and distinct.
	seen := make(map[string]bool, workers)
	for _, invoice := range invoices {
		seen[invoice.InvoiceNumber] = true
	}
	for i := 1; i <= workers; i++ {
		number := fmt.Sprintf("INV-20260301-%04d", i)
		if !seen[number] {
			t.Fatalf("missing invoice number %s in %v", number, seen)
		}
	}
}
