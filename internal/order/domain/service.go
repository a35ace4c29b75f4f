package domain

import (
	"context"
	"errors"

	invoicedomain "github.com/billfold/billfold/internal/invoice/domain"
	paymentdomain "github.com/billfold/billfold/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
)

type CheckoutRequest struct {
	Method         paymentdomain.Method `json:"payment_method"`
	BillingAddress string               `json:"billing_address"`
}

type CheckoutStatus string

const (
	CheckoutPaid    CheckoutStatus = "paid"
	CheckoutPending CheckoutStatus = "pending_verification"
)

type CheckoutResult struct {
	Status  CheckoutStatus         `json:"status"`
	Orders  []*Order               `json:"orders"`
	Invoice *invoicedomain.Invoice `json:"invoice"`
	Payment *paymentdomain.Payment `json:"payment,omitempty"`
}

type ListOrdersRequest struct {
	CustomerID snowflake.ID
	Status     Status
	Limit      int
}

type Service interface {
	// Checkout turns the cart into orders plus one invoice and
	// attempts payment. A failed payment leaves the pending orders and
	// invoice behind for a retry via the invoice pay endpoint.
	Checkout(ctx context.Context, userID snowflake.ID, req CheckoutRequest) (*CheckoutResult, error)
	Get(ctx context.Context, id snowflake.ID) (*Order, error)
	List(ctx context.Context, req ListOrdersRequest) ([]*Order, error)
	// Cancel is the customer path: pending orders only.
	Cancel(ctx context.Context, userID snowflake.ID, id snowflake.ID) (*Order, error)
	// UpdateStatus is the back-office path: any status, except that
	// completed orders are immutable.
	UpdateStatus(ctx context.Context, id snowflake.ID, status Status) (*Order, error)
}

var (
	ErrOrderNotFound    = errors.New("order_not_found")
	ErrNotCancelable    = errors.New("order_not_cancelable")
	ErrOrderImmutable   = errors.New("order_immutable")
	ErrInvalidStatus    = errors.New("invalid_order_status")
	ErrCheckoutConflict = errors.New("checkout_conflict")
)
