package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Balance returns the user's wallet, creating an empty one on
	// first access.
	Balance(ctx context.Context, userID snowflake.ID) (*Wallet, error)
	Deposit(ctx context.Context, userID snowflake.ID, amount int64, description string, reference string) (*Wallet, error)
	// DebitTx withdraws inside the caller's transaction. The balance
	// check and the decrement are a single conditional update, so two
	// concurrent debits can never overdraw.
	DebitTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, amount int64, description string, reference string) error
	Transactions(ctx context.Context, userID snowflake.ID, limit int) ([]*Transaction, error)
}

var (
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrInvalidAmount     = errors.New("invalid_amount")
)
