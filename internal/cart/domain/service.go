package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// AddItem snapshots the catalog price into a cart line, bumping the
	// quantity when the service is already in the cart.
	AddItem(ctx context.Context, userID snowflake.ID, serviceID snowflake.ID, quantity int64) (*Item, error)
	UpdateItem(ctx context.Context, userID snowflake.ID, itemID snowflake.ID, quantity int64) (*Item, error)
	RemoveItem(ctx context.Context, userID snowflake.ID, itemID snowflake.ID) error
	Get(ctx context.Context, userID snowflake.ID) (*Cart, error)
	ApplyCoupon(ctx context.Context, userID snowflake.ID, code string) (*Cart, error)
	RemoveCoupon(ctx context.Context, userID snowflake.ID) error
	// ClearTx empties the cart and drops the applied coupon inside the
	// caller's transaction.
	ClearTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error
}

var (
	ErrItemNotFound    = errors.New("cart_item_not_found")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrCartEmpty       = errors.New("cart_empty")
)
