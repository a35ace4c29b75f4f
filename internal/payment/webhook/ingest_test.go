package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/billfold/billfold/internal/clock"
	"github.com/billfold/billfold/internal/config"
	invoicedomain "github.com/billfold/billfold/internal/invoice/domain"
	"github.com/billfold/billfold/internal/payment/adapters"
	"github.com/billfold/billfold/internal/payment/adapters/card"
	"github.com/billfold/billfold/internal/payment/adapters/paypal"
	paymentdomain "github.com/billfold/billfold/internal/payment/domain"
	paymentservice "github.com/billfold/billfold/internal/payment/service"
	walletdomain "github.com/billfold/billfold/internal/wallet/domain"
	walletservice "github.com/billfold/billfold/internal/wallet/service"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testSecret = "whsec_test"

type testEnv struct {
	svc  paymentdomain.WebhookService
	db   *gorm.DB
	node *snowflake.Node
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
		&paymentdomain.Payment{},
		&paymentdomain.EventRecord{},
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
	log := zap.NewNop()
	cfg := config.Config{GatewayCardSecret: testSecret}
	billing := config.NewBillingConfigHolderFrom(config.DefaultBillingConfig())
	registry := adapters.NewRegistry(card.NewFactory(), paypal.NewFactory())

	wallet := walletservice.NewService(walletservice.Params{DB: dbConn, Log: log, GenID: node})
	payments := paymentservice.NewService(paymentservice.Params{
		DB:       dbConn,
		Log:      log,
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
		Cfg:      cfg,
		Billing:  billing,
		Registry: registry,
		Wallet:   wallet,
	})

	svc := NewService(Params{
		Log:        log,
		Cfg:        cfg,
		Billing:    billing,
		Adapters:   registry,
		PaymentSvc: payments,
	})

	return &testEnv{svc: svc, db: dbConn, node: node}
}

func (e *testEnv) seedInvoice(t *testing.T, total int64) *invoicedomain.Invoice {
	t.Helper()
	invoice := &invoicedomain.Invoice{
		ID:            e.node.Generate(),
		InvoiceNumber: "INV-20260301-0001",
		CustomerID:    snowflake.ID(7),
		Subtotal:      total,
		TotalAmount:   total,
		Status:        invoicedomain.StatusPending,
		DueDate:       time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
	}
	if err := e.db.Create(invoice).Error; err != nil {
		t.Fatalf("failed to seed invoice: %v", err)
	}
	return invoice
}

func sign(payload []byte) http.Header {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(payload)
	headers := http.Header{}
	headers.Set("X-Card-Signature", hex.EncodeToString(mac.Sum(nil)))
	return headers
}

func TestIngestSettlesInvoice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	invoice := env.seedInvoice(t, 8800)

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"charge.succeeded","data":{"transaction_id":"txn_1","invoice_id":"%s","amount":8800,"currency":"usd"}}`,
		invoice.ID,
	))

	if err := env.svc.IngestWebhook(ctx, "card", payload, sign(payload)); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	var reloaded invoicedomain.Invoice
	if err := env.db.First(&reloaded, "id = ?", invoice.ID).Error; err != nil {
		t.Fatalf("failed to reload invoice: %v", err)
	}
	if reloaded.Status != invoicedomain.StatusPaid {
		t.Fatalf("expected paid invoice, got %s", reloaded.Status)
	}

	// Redelivery acknowledges without a second settlement.
	if err := env.svc.IngestWebhook(ctx, "card", payload, sign(payload)); err != nil {
		t.Fatalf("redelivery should be acknowledged: %v", err)
	}
	var count int64
	env.db.Model(&paymentdomain.Payment{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 payment row, got %d", count)
	}
}

func TestIngestRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	invoice := env.seedInvoice(t, 8800)

	payload := []byte(fmt.Sprintf(
		`{"id":"evt_1","type":"charge.succeeded","data":{"invoice_id":"%s","amount":8800}}`,
		invoice.ID,
	))
	headers := http.Header{}
	headers.Set("X-Card-Signature", "deadbeef")

	err := env.svc.IngestWebhook(context.Background(), "card", payload, headers)
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestIngestUnknownProvider(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.IngestWebhook(context.Background(), "skrill", []byte(`{}`), http.Header{})
	if !errors.Is(err, paymentdomain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestIngestDropsUnhandledEventTypes(t *testing.T) {
	env := newTestEnv(t)

	payload := []byte(`{"id":"evt_1","type":"customer.updated","data":{}}`)
	if err := env.svc.IngestWebhook(context.Background(), "card", payload, sign(payload)); err != nil {
		t.Fatalf("unhandled event types are acknowledged: %v", err)
	}
}

func TestIngestRejectsMalformedPayload(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.IngestWebhook(context.Background(), "card", []byte("not json"), http.Header{})
	if !errors.Is(err, paymentdomain.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}
