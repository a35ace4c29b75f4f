// Package domain contains the order models.
package domain

import (
	"time"

	catalogdomain "github.com/billfold/billfold/internal/catalog/domain"
	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCanceled   Status = "canceled"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCanceled, StatusFailed:
		return true
	default:
		return false
	}
}

// Order snapshots the catalog line at purchase time. Price is the
// cycle-adjusted total for the line in minor units.
type Order struct {
	ID           snowflake.ID               `json:"id" gorm:"primaryKey"`
	CustomerID   snowflake.ID               `json:"customer_id" gorm:"not null;index"`
	ServiceID    snowflake.ID               `json:"service_id" gorm:"not null;index"`
	ServiceName  string                     `json:"service_name" gorm:"type:text;not null"`
	Quantity     int64                      `json:"quantity" gorm:"not null"`
	Price        int64                      `json:"price" gorm:"not null"`
	BillingCycle catalogdomain.BillingCycle `json:"billing_cycle" gorm:"type:text;not null"`
	Status       Status                     `json:"status" gorm:"type:text;not null;default:'pending';index"`
	InvoiceID    snowflake.ID               `json:"invoice_id" gorm:"index"`
	CreatedAt    time.Time                  `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time                  `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }
