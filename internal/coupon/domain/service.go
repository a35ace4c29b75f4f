package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateCouponRequest struct {
	Code          string     `json:"code"`
	Type          Type       `json:"type"`
	Value         int64      `json:"value"`
	ExpiresAt     *time.Time `json:"expires_at"`
	MaxUses       int64      `json:"max_uses"`
	PerUserOnce   bool       `json:"per_user_once"`
	MinOrderValue int64      `json:"min_order_value"`
}

type UpdateCouponRequest struct {
	Value         *int64     `json:"value"`
	ExpiresAt     *time.Time `json:"expires_at"`
	MaxUses       *int64     `json:"max_uses"`
	PerUserOnce   *bool      `json:"per_user_once"`
	MinOrderValue *int64     `json:"min_order_value"`
	Active        *bool      `json:"active"`
}

type Service interface {
	Create(ctx context.Context, req CreateCouponRequest) (*Coupon, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateCouponRequest) (*Coupon, error)
	Delete(ctx context.Context, id snowflake.ID) error
	Get(ctx context.Context, id snowflake.ID) (*Coupon, error)
	List(ctx context.Context) ([]*Coupon, error)

	// Validate checks a code against the user's history and the given
	// cart subtotal, returning the coupon when it may be applied.
	Validate(ctx context.Context, userID snowflake.ID, code string, subtotal int64) (*Coupon, error)
	// Redeem burns one use inside the caller's transaction.
	Redeem(ctx context.Context, tx *gorm.DB, userID snowflake.ID, couponID snowflake.ID, orderRef string) error
}

var (
	ErrCouponNotFound    = errors.New("coupon_not_found")
	ErrCouponExists      = errors.New("coupon_exists")
	ErrCouponInactive    = errors.New("coupon_inactive")
	ErrCouponExpired     = errors.New("coupon_expired")
	ErrCouponExhausted   = errors.New("coupon_exhausted")
	ErrCouponAlreadyUsed = errors.New("coupon_already_used")
	ErrMinOrderNotMet    = errors.New("coupon_min_order_not_met")
	ErrInvalidCoupon     = errors.New("invalid_coupon")
)
