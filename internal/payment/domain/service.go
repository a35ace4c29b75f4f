package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

// ProcessPaymentResult carries the settlement outcome. Pending means
// the gateway has not confirmed yet and the webhook will finish the
// job; no local rows exist in that case.
type ProcessPaymentResult struct {
	Payment *Payment
	Pending bool
}

type ListPaymentsRequest struct {
	UserID    snowflake.ID
	InvoiceID snowflake.ID
	Limit     int
}

type Service interface {
	ProcessPayment(ctx context.Context, userID snowflake.ID, invoiceID snowflake.ID, amount int64, method Method) (*ProcessPaymentResult, error)
	// ProcessEvent applies one canonical gateway event, exactly once
	// per (provider, event id).
	ProcessEvent(ctx context.Context, event *PaymentEvent) error
	Refund(ctx context.Context, paymentID snowflake.ID) (*Payment, error)
	Get(ctx context.Context, id snowflake.ID) (*Payment, error)
	List(ctx context.Context, req ListPaymentsRequest) ([]*Payment, error)
}

type WebhookService interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error
}
