// Package domain contains the shopping cart models.
package domain

import (
	"time"

	catalogdomain "github.com/billfold/billfold/internal/catalog/domain"
	"github.com/bwmarrin/snowflake"
)

// Item is one cart line. Price and cycle are snapshotted from the
// catalog at add time so later catalog edits do not reprice the cart.
type Item struct {
	ID           snowflake.ID               `json:"id" gorm:"primaryKey"`
	UserID       snowflake.ID               `json:"user_id" gorm:"not null;uniqueIndex:idx_cart_user_service"`
	ServiceID    snowflake.ID               `json:"service_id" gorm:"not null;uniqueIndex:idx_cart_user_service"`
	ServiceName  string                     `json:"service_name" gorm:"type:text;not null"`
	Quantity     int64                      `json:"quantity" gorm:"not null;default:1"`
	UnitPrice    int64                      `json:"unit_price" gorm:"not null"`
	Recurring    bool                       `json:"recurring" gorm:"not null;default:false"`
	BillingCycle catalogdomain.BillingCycle `json:"billing_cycle" gorm:"type:text;not null"`
	CreatedAt    time.Time                  `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time                  `json:"updated_at" gorm:"not null"`
}

func (Item) TableName() string { return "cart_items" }

// LineTotal is the cycle-adjusted price for this line.
func (i Item) LineTotal() int64 {
	return CalculatePrice(i.UnitPrice, i.Quantity, i.BillingCycle)
}

// AppliedCoupon tracks the single coupon a user holds against their
// cart. It is consumed at checkout.
type AppliedCoupon struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID    snowflake.ID `json:"user_id" gorm:"not null;uniqueIndex"`
	CouponID  snowflake.ID `json:"coupon_id" gorm:"not null"`
	Code      string       `json:"code" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (AppliedCoupon) TableName() string { return "cart_coupons" }

// Cart is the assembled view returned to callers.
type Cart struct {
	Items    []*Item        `json:"items"`
	Subtotal int64          `json:"subtotal"`
	Coupon   *AppliedCoupon `json:"coupon,omitempty"`
	Discount int64          `json:"discount"`
}
