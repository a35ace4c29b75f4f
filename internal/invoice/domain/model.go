// Package domain contains the invoice models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusOutstanding Status = "outstanding"
	StatusPaid        Status = "paid"
	StatusCancelled   Status = "cancelled"
	StatusRefunded    Status = "refunded"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusOutstanding, StatusPaid, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// Invoice totals are always recomputed from the items plus tax and
// discount; TotalAmount is never accepted from a caller.
type Invoice struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	InvoiceNumber  string            `json:"invoice_number" gorm:"type:text;not null;uniqueIndex"`
	CustomerID     snowflake.ID      `json:"customer_id" gorm:"not null;index"`
	Subtotal       int64             `json:"subtotal" gorm:"not null"`
	TaxAmount      int64             `json:"tax_amount" gorm:"not null"`
	DiscountAmount int64             `json:"discount_amount" gorm:"not null"`
	TotalAmount    int64             `json:"total_amount" gorm:"not null"`
	Status         Status            `json:"status" gorm:"type:text;not null;default:'pending';index"`
	DueDate        time.Time         `json:"due_date" gorm:"not null;index"`
	Notes          string            `json:"notes" gorm:"type:text"`
	ReminderCount  int64             `json:"reminder_count" gorm:"not null;default:0"`
	LastReminderAt *time.Time        `json:"last_reminder_at"`
	Metadata       datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"not null"`

	Items []InvoiceItem `json:"items" gorm:"foreignKey:InvoiceID"`
}

func (Invoice) TableName() string { return "invoices" }

type InvoiceItem struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	InvoiceID   snowflake.ID `json:"invoice_id" gorm:"not null;index"`
	ServiceID   snowflake.ID `json:"service_id" gorm:"index"`
	Description string       `json:"description" gorm:"type:text;not null"`
	Quantity    int64        `json:"quantity" gorm:"not null"`
	UnitPrice   int64        `json:"unit_price" gorm:"not null"`
	Amount      int64        `json:"amount" gorm:"not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// Payable reports whether a payment may still be taken against the
// invoice.
func (i Invoice) Payable() bool {
	return i.Status == StatusPending || i.Status == StatusOutstanding
}
