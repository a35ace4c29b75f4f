package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/billfold/billfold/internal/clock"
	"github.com/billfold/billfold/internal/config"
	invoicedomain "github.com/billfold/billfold/internal/invoice/domain"
	"github.com/billfold/billfold/internal/payment/adapters"
	"github.com/billfold/billfold/internal/payment/adapters/card"
	"github.com/billfold/billfold/internal/payment/adapters/paypal"
	"github.com/billfold/billfold/internal/payment/domain"
	walletdomain "github.com/billfold/billfold/internal/wallet/domain"
	walletservice "github.com/billfold/billfold/internal/wallet/service"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	svc    domain.Service
	wallet walletdomain.Service
	db     *gorm.DB
	node   *snowflake.Node
	clk    *clock.FakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbConn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	err = dbConn.AutoMigrate(
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&domain.Payment{},
		&domain.EventRecord{},
		&walletdomain.Wallet{},
		&walletdomain.Transaction{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	wallet := walletservice.NewService(walletservice.Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
	})

	svc := NewService(Params{
		DB:       dbConn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clk,
		Cfg:      config.Config{},
		Billing:  config.NewBillingConfigHolderFrom(config.DefaultBillingConfig()),
		Registry: adapters.NewRegistry(card.NewFactory(), paypal.NewFactory()),
		Wallet:   wallet,
	})

	return &testEnv{svc: svc, wallet: wallet, db: dbConn, node: node, clk: clk}
}

func (e *testEnv) seedInvoice(t *testing.T, customerID snowflake.ID, total int64, status invoicedomain.Status) *invoicedomain.Invoice {
	t.Helper()
	invoice := &invoicedomain.Invoice{
		ID:            e.node.Generate(),
		InvoiceNumber: fmt.Sprintf("INV-20260301-%04d", e.node.Generate()%10000),
		CustomerID:    customerID,
		Subtotal:      total,
		TotalAmount:   total,
		Status:        status,
		DueDate:       e.clk.Now().AddDate(0, 0, 14),
	}
	if err := e.db.Create(invoice).Error; err != nil {
		t.Fatalf("failed to seed invoice: %v", err)
	}
	return invoice
}

func TestProcessPaymentFromWallet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := snowflake.ID(7)
	invoice := env.seedInvoice(t, user, 8800, invoicedomain.StatusPending)

	if _, err := env.wallet.Deposit(ctx, user, 10000, "top up", ""); err != nil {
		t.Fatalf("failed to deposit: %v", err)
	}

	result, err := env.svc.ProcessPayment(ctx, user, invoice.ID, 8800, domain.MethodWallet)
	if err != nil {
		t.Fatalf("failed to pay: %v", err)
	}
	if result.Pending {
		t.Fatal("wallet payments settle synchronously")
	}
	if result.Payment.Status != domain.StatusCompleted || result.Payment.Amount != 8800 {
		t.Fatalf("unexpected payment: %+v", result.Payment)
	}

	var reloaded invoicedomain.Invoice
	if err := env.db.First(&reloaded, "id = ?", invoice.ID).Error; err != nil {
		t.Fatalf("failed to reload invoice: %v", err)
	}
	if reloaded.Status != invoicedomain.StatusPaid {
		t.Fatalf("expected paid invoice, got %s", reloaded.Status)
	}

	balance, err := env.wallet.Balance(ctx, user)
	if err != nil {
		t.Fatalf("failed to fetch balance: %v", err)
	}
	if balance.Balance != 1200 {
		t.Fatalf("expected balance 1200, got %d", balance.Balance)
	}
}

func TestProcessPaymentAmountMismatch(t *testing.T) {
	env := newTestEnv(t)
	user := snowflake.ID(7)
	invoice := env.seedInvoice(t, user, 8800, invoicedomain.StatusPending)

	_, err := env.svc.ProcessPayment(context.Background(), user, invoice.ID, 8000, domain.MethodWallet)
	if !errors.Is(err, domain.ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got %v", err)
	}
}

func TestProcessPaymentUnpayableInvoice(t *testing.T) {
	env := newTestEnv(t)
	user := snowflake.ID(7)
	invoice := env.seedInvoice(t, user, 8800, invoicedomain.StatusPaid)

	_, err := env.svc.ProcessPayment(context.Background(), user, invoice.ID, 8800, domain.MethodWallet)
	if !errors.Is(err, domain.ErrInvoiceNotPayable) {
		t.Fatalf("expected ErrInvoiceNotPayable, got %v", err)
	}
}

func TestProcessPaymentInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := snowflake.ID(7)
	invoice := env.seedInvoice(t, user, 8800, invoicedomain.StatusPending)

	if _, err := env.wallet.Deposit(ctx, user, 1000, "top up", ""); err != nil {
		t.Fatalf("failed to deposit: %v", err)
	}

	_, err := env.svc.ProcessPayment(ctx, user, invoice.ID, 8800, domain.MethodWallet)
	if !errors.Is(err, walletdomain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	// The whole attempt rolls back.
	var reloaded invoicedomain.Invoice
	if err := env.db.First(&reloaded, "id = ?", invoice.ID).Error; err != nil {
		t.Fatalf("failed to reload invoice: %v", err)
	}
	if reloaded.Status != invoicedomain.StatusPending {
		t.Fatalf("expected pending invoice, got %s", reloaded.Status)
	}
	var count int64
	env.db.Model(&domain.Payment{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no payment rows, got %d", count)
	}
}

func TestProcessEventSettlesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := snowflake.ID(7)
	invoice := env.seedInvoice(t, user, 8800, invoicedomain.StatusPending)

	event := &domain.PaymentEvent{
		Provider:        "card",
		ProviderEventID: "evt_1",
		TransactionID:   "txn_1",
		Type:            domain.EventTypePaymentSucceeded,
		InvoiceID:       invoice.ID,
		Amount:          8800,
		RawPayload:      []byte(`{"id":"evt_1"}`),
	}

	if err := env.svc.ProcessEvent(ctx, event); err != nil {
		t.Fatalf("failed to process event: %v", err)
	}

	var reloaded invoicedomain.Invoice
	if err := env.db.First(&reloaded, "id = ?", invoice.ID).Error; err != nil {
		t.Fatalf("failed to reload invoice: %v", err)
	}
	if reloaded.Status != invoicedomain.StatusPaid {
		t.Fatalf("expected paid invoice, got %s", reloaded.Status)
	}

	// Redelivery of a processed event is rejected.
	if err := env.svc.ProcessEvent(ctx, event); !errors.Is(err, domain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected ErrEventAlreadyProcessed, got %v", err)
	}

	var count int64
	env.db.Model(&domain.Payment{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 payment row, got %d", count)
	}
}

func TestProcessEventForPaidInvoiceIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	invoice := env.seedInvoice(t, snowflake.ID(7), 8800, invoicedomain.StatusPaid)

	err := env.svc.ProcessEvent(ctx, &domain.PaymentEvent{
		Provider:        "card",
		ProviderEventID: "evt_dup",
		Type:            domain.EventTypePaymentSucceeded,
		InvoiceID:       invoice.ID,
		Amount:          8800,
		RawPayload:      []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("failed to process event: %v", err)
	}

	var count int64
	env.db.Model(&domain.Payment{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no payment rows, got %d", count)
	}
}

func TestProcessEventFailureMarksOutstanding(t *testing.T) {
	env := newTestEnv(t)
	invoice := env.seedInvoice(t, snowflake.ID(7), 8800, invoicedomain.StatusPending)

	err := env.svc.ProcessEvent(context.Background(), &domain.PaymentEvent{
		Provider:        "paypal",
		ProviderEventID: "evt_fail",
		Type:            domain.EventTypePaymentFailed,
		InvoiceID:       invoice.ID,
		RawPayload:      []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("failed to process event: %v", err)
	}

	var reloaded invoicedomain.Invoice
	if err := env.db.First(&reloaded, "id = ?", invoice.ID).Error; err != nil {
		t.Fatalf("failed to reload invoice: %v", err)
	}
	if reloaded.Status != invoicedomain.StatusOutstanding {
		t.Fatalf("expected outstanding invoice, got %s", reloaded.Status)
	}
}

func TestProcessEventInvalid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.svc.ProcessEvent(ctx, nil); !errors.Is(err, domain.ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	err := env.svc.ProcessEvent(ctx, &domain.PaymentEvent{
		Provider:        "card",
		ProviderEventID: "evt_bad",
		Type:            domain.EventTypePaymentSucceeded,
		InvoiceID:       snowflake.ID(1),
		Amount:          0,
	})
	if !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRefund(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := snowflake.ID(7)
	invoice := env.seedInvoice(t, user, 8800, invoicedomain.StatusPending)

	if _, err := env.wallet.Deposit(ctx, user, 10000, "top up", ""); err != nil {
		t.Fatalf("failed to deposit: %v", err)
	}
	result, err := env.svc.ProcessPayment(ctx, user, invoice.ID, 8800, domain.MethodWallet)
	if err != nil {
		t.Fatalf("failed to pay: %v", err)
	}

	refunded, err := env.svc.Refund(ctx, result.Payment.ID)
	if err != nil {
		t.Fatalf("failed to refund: %v", err)
	}
	if refunded.Status != domain.StatusRefunded {
		t.Fatalf("expected refunded payment, got %s", refunded.Status)
	}

	var reloaded invoicedomain.Invoice
	if err := env.db.First(&reloaded, "id = ?", invoice.ID).Error; err != nil {
		t.Fatalf("failed to reload invoice: %v", err)
	}
	if reloaded.Status != invoicedomain.StatusRefunded {
		t.Fatalf("expected refunded invoice, got %s", reloaded.Status)
	}

	if _, err := env.svc.Refund(ctx, result.Payment.ID); !errors.Is(err, domain.ErrNotRefundable) {
		t.Fatalf("expected ErrNotRefundable, got %v", err)
	}
}

func TestRefundFromEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := snowflake.ID(7)
	invoice := env.seedInvoice(t, user, 8800, invoicedomain.StatusPending)

	if _, err := env.wallet.Deposit(ctx, user, 10000, "top up", ""); err != nil {
		t.Fatalf("failed to deposit: %v", err)
	}
	if _, err := env.svc.ProcessPayment(ctx, user, invoice.ID, 8800, domain.MethodWallet); err != nil {
		t.Fatalf("failed to pay: %v", err)
	}

	err := env.svc.ProcessEvent(ctx, &domain.PaymentEvent{
		Provider:        "card",
		ProviderEventID: "evt_refund",
		Type:            domain.EventTypeRefunded,
		InvoiceID:       invoice.ID,
		Amount:          8800,
		RawPayload:      []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("failed to process refund event: %v", err)
	}

	var payment domain.Payment
	if err := env.db.First(&payment, "invoice_id = ?", invoice.ID).Error; err != nil {
		t.Fatalf("failed to reload payment: %v", err)
	}
	if payment.Status != domain.StatusRefunded {
		t.Fatalf("expected refunded payment, got %s", payment.Status)
	}
}

func TestProcessPaymentRejectsForeignInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := snowflake.ID(7)
	intruder := snowflake.ID(8)
	invoice := env.seedInvoice(t, owner, 8800, invoicedomain.StatusPending)

	if _, err := env.wallet.Deposit(ctx, intruder, 10000, "top up", ""); err != nil {
		t.Fatalf("failed to deposit: %v", err)
	}

	_, err := env.svc.ProcessPayment(ctx, intruder, invoice.ID, 8800, domain.MethodWallet)
	if !errors.Is(err, domain.ErrNotInvoiceOwner) {
		t.Fatalf("expected ErrNotInvoiceOwner, got %v", err)
	}

	var reloaded invoicedomain.Invoice
	if err := env.db.First(&reloaded, "id = ?", invoice.ID).Error; err != nil {
		t.Fatalf("failed to reload invoice: %v", err)
	}
	if reloaded.Status != invoicedomain.StatusPending {
		t.Fatalf("expected pending invoice, got %s", reloaded.Status)
	}
	var count int64
	env.db.Model(&domain.Payment{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no payment rows, got %d", count)
	}
	balance, err := env.wallet.Balance(ctx, intruder)
	if err != nil {
		t.Fatalf("failed to fetch balance: %v", err)
	}
	if balance.Balance != 10000 {
		t.Fatalf("expected untouched balance, got %d", balance.Balance)
	}
}

func TestSettleIsConditionalOnInvoiceStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := snowflake.ID(7)
	invoice := env.seedInvoice(t, user, 8800, invoicedomain.StatusPending)
	impl := env.svc.(*Service)

	err := env.db.Transaction(func(tx *gorm.DB) error {
		_, err := impl.settleTx(ctx, tx, invoice, user, 8800, domain.MethodCard, "txn_1")
		return err
	})
	if err != nil {
		t.Fatalf("first settlement should succeed: %v", err)
	}

	// A second settlement against the now-paid invoice must not insert
	// another payment row.
	err = env.db.Transaction(func(tx *gorm.DB) error {
		_, err := impl.settleTx(ctx, tx, invoice, user, 8800, domain.MethodCard, "txn_2")
		return err
	})
	if !errors.Is(err, domain.ErrInvoiceNotPayable) {
		t.Fatalf("expected ErrInvoiceNotPayable, got %v", err)
	}

	var count int64
	env.db.Model(&domain.Payment{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one payment row, got %d", count)
	}
	var reloaded invoicedomain.Invoice
	if err := env.db.First(&reloaded, "id = ?", invoice.ID).Error; err != nil {
		t.Fatalf("failed to reload invoice: %v", err)
	}
	if reloaded.Status != invoicedomain.StatusPaid {
		t.Fatalf("expected paid invoice, got %s", reloaded.Status)
	}
}

func TestProcessPaymentGatewayPending(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"pending","transaction_id":"txn_hold"}`)
	}))
	defer gateway.Close()

	env := newTestEnv(t)
	ctx := context.Background()
	user := snowflake.ID(7)
	invoice := env.seedInvoice(t, user, 8800, invoicedomain.StatusPending)

	svc := NewService(Params{
		DB:    env.db,
		Log:   zap.NewNop(),
		GenID: env.node,
		Clock: env.clk,
		Cfg: config.Config{
			GatewayCardEndpoint: gateway.URL,
			GatewayCardSecret:   "sk_test",
		},
		Billing:  config.NewBillingConfigHolderFrom(config.DefaultBillingConfig()),
		Registry: adapters.NewRegistry(card.NewFactory(), paypal.NewFactory()),
		Wallet:   env.wallet,
	})

	result, err := svc.ProcessPayment(ctx, user, invoice.ID, 8800, domain.MethodCard)
	if err != nil {
		t.Fatalf("pending charge should not error: %v", err)
	}
	if !result.Pending || result.Payment != nil {
		t.Fatalf("expected pending verification, got %+v", result)
	}

	// Settlement waits for the provider webhook.
	var reloaded invoicedomain.Invoice
	if err := env.db.First(&reloaded, "id = ?", invoice.ID).Error; err != nil {
		t.Fatalf("failed to reload invoice: %v", err)
	}
	if reloaded.Status != invoicedomain.StatusPending {
		t.Fatalf("expected pending invoice, got %s", reloaded.Status)
	}
	var count int64
	env.db.Model(&domain.Payment{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no payment rows, got %d", count)
	}
}
