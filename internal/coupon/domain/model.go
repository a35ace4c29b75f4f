// Package domain contains the coupon models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
)

func (t Type) Valid() bool {
	return t == TypePercentage || t == TypeFixed
}

// Coupon codes are stored upper-cased; lookups normalize the same way.
// Value is whole percent for percentage coupons and minor units for
// fixed ones. MaxUses of zero means unlimited.
type Coupon struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	Code          string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	Type          Type         `json:"type" gorm:"type:text;not null"`
	Value         int64        `json:"value" gorm:"not null"`
	ExpiresAt     *time.Time   `json:"expires_at"`
	MaxUses       int64        `json:"max_uses" gorm:"not null;default:0"`
	UsedCount     int64        `json:"used_count" gorm:"not null;default:0"`
	PerUserOnce   bool         `json:"per_user_once" gorm:"not null;default:false"`
	MinOrderValue int64        `json:"min_order_value" gorm:"not null;default:0"`
	Active        bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null"`
}

func (Coupon) TableName() string { return "coupons" }

// DiscountFor computes the discount against a subtotal, clamped so it
// never exceeds the subtotal. Percentage amounts round half-up.
func (c Coupon) DiscountFor(subtotal int64) int64 {
	if subtotal <= 0 {
		return 0
	}
	var discount int64
	switch c.Type {
	case TypePercentage:
		discount = (subtotal*c.Value + 50) / 100
	case TypeFixed:
		discount = c.Value
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// Redemption records one use of a coupon by one user.
type Redemption struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	CouponID  snowflake.ID `json:"coupon_id" gorm:"not null;index"`
	UserID    snowflake.ID `json:"user_id" gorm:"not null;index"`
	OrderRef  string       `json:"order_ref" gorm:"type:text"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (Redemption) TableName() string { return "coupon_redemptions" }
