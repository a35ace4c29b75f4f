// Package domain contains the payment models and the gateway adapter
// contract.
package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Method string

const (
	MethodWallet Method = "wallet"
	MethodCard   Method = "card"
	MethodPaypal Method = "paypal"
)

func (m Method) Valid() bool {
	switch m {
	case MethodWallet, MethodCard, MethodPaypal:
		return true
	default:
		return false
	}
}

// Gateway reports whether the method settles through an external
// provider rather than the local wallet.
func (m Method) Gateway() bool {
	return m == MethodCard || m == MethodPaypal
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Payment is written only when money actually moved; a declined charge
// leaves no row behind.
type Payment struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	InvoiceID     snowflake.ID `json:"invoice_id" gorm:"not null;index"`
	UserID        snowflake.ID `json:"user_id" gorm:"not null;index"`
	Amount        int64        `json:"amount" gorm:"not null"`
	Method        Method       `json:"method" gorm:"type:text;not null"`
	TransactionID string       `json:"transaction_id" gorm:"type:text;index"`
	Status        Status       `json:"status" gorm:"type:text;not null"`
	PaymentDate   time.Time    `json:"payment_date" gorm:"not null"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// EventRecord stores every webhook event exactly once; the unique
// (provider, provider_event_id) pair makes redelivery a no-op.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:idx_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:idx_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	InvoiceID       snowflake.ID   `json:"invoice_id" gorm:"index"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
	EventTypeRefunded         = "refunded"
)

// PaymentEvent is the canonical event shape adapters parse provider
// payloads into.
type PaymentEvent struct {
	Provider        string
	ProviderEventID string
	TransactionID   string
	Type            string
	InvoiceID       snowflake.ID
	Amount          int64
	Currency        string
	OccurredAt      time.Time
	RawPayload      []byte
}

type ChargeStatus string

const (
	ChargeSucceeded ChargeStatus = "succeeded"
	ChargeDeclined  ChargeStatus = "declined"
	// ChargePending means the gateway did not answer in time; the
	// outcome arrives later over the webhook.
	ChargePending ChargeStatus = "pending"
)

type ChargeRequest struct {
	InvoiceID     snowflake.ID
	InvoiceNumber string
	CustomerID    snowflake.ID
	Amount        int64
	Currency      string
}

type ChargeResult struct {
	Status        ChargeStatus
	TransactionID string
	Reason        string
}

type AdapterConfig struct {
	Endpoint string
	Secret   string
	Timeout  time.Duration
}

type PaymentAdapter interface {
	Provider() string
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}
