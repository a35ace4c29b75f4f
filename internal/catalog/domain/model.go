// Package domain contains the service catalog models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingCycle is how often a recurring service bills.
type BillingCycle string

const (
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleAnnual    BillingCycle = "annual"
)

func (c BillingCycle) Valid() bool {
	switch c {
	case CycleMonthly, CycleQuarterly, CycleAnnual:
		return true
	default:
		return false
	}
}

// Service is a sellable catalog entry. Price is in minor units.
type Service struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Name         string       `json:"name" gorm:"type:text;not null"`
	Description  string       `json:"description" gorm:"type:text"`
	Category     string       `json:"category" gorm:"type:text;index"`
	Price        int64        `json:"price" gorm:"not null"`
	Recurring    bool         `json:"recurring" gorm:"not null;default:false"`
	BillingCycle BillingCycle `json:"billing_cycle" gorm:"type:text;not null;default:'monthly'"`
	Active       bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (Service) TableName() string { return "services" }
