package domain

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ItemInput struct {
	ServiceID   snowflake.ID `json:"service_id"`
	Description string       `json:"description"`
	Quantity    int64        `json:"quantity"`
	UnitPrice   int64        `json:"unit_price"`
}

type CreateInvoiceRequest struct {
	CustomerID     snowflake.ID   `json:"customer_id"`
	Items          []ItemInput    `json:"items"`
	TaxAmount      int64          `json:"tax_amount"`
	DiscountAmount int64          `json:"discount_amount"`
	DueDate        *time.Time     `json:"due_date"`
	Notes          string         `json:"notes"`
	Metadata       map[string]any `json:"metadata"`
}

type UpdateInvoiceRequest struct {
	Items          []ItemInput    `json:"items"`
	TaxAmount      *int64         `json:"tax_amount"`
	DiscountAmount *int64         `json:"discount_amount"`
	DueDate        *time.Time     `json:"due_date"`
	Notes          *string        `json:"notes"`
	Metadata       map[string]any `json:"metadata"`
}

type ListInvoicesRequest struct {
	CustomerID snowflake.ID
	Status     Status
	Limit      int
}

type Service interface {
	// Create issues an invoice with a fresh sequential number. The
	// invoice and its items land in one transaction.
	Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	// Update replaces the item set wholesale when items are provided
	// and recomputes every total from scratch.
	Update(ctx context.Context, id snowflake.ID, req UpdateInvoiceRequest) (*Invoice, error)
	UpdateStatus(ctx context.Context, id snowflake.ID, status Status) (*Invoice, error)
	Get(ctx context.Context, id snowflake.ID) (*Invoice, error)
	List(ctx context.Context, req ListInvoicesRequest) ([]*Invoice, error)
	// Delete hard-deletes the invoice, its items and its payments.
	Delete(ctx context.Context, id snowflake.ID) error
	RenderPDF(ctx context.Context, id snowflake.ID) (io.Reader, error)
}

var (
	ErrInvoiceNotFound = errors.New("invoice_not_found")
	ErrEmptyItems      = errors.New("invoice_items_required")
	ErrInvalidItem     = errors.New("invalid_invoice_item")
	ErrInvalidStatus   = errors.New("invalid_invoice_status")
	ErrInvalidAmount   = errors.New("invalid_invoice_amount")
	ErrNumberExhausted = errors.New("invoice_number_conflict")
)
