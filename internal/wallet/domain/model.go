// Package domain contains the wallet models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Wallet holds a user's prepaid balance in minor units. The balance is
// only ever changed together with a ledger row, in one transaction.
type Wallet struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID    snowflake.ID `json:"user_id" gorm:"not null;uniqueIndex"`
	Balance   int64        `json:"balance" gorm:"not null;default:0"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time    `json:"updated_at" gorm:"not null"`
}

func (Wallet) TableName() string { return "wallets" }

type TransactionType string

const (
	TransactionDeposit TransactionType = "deposit"
	TransactionPayment TransactionType = "payment"
)

// Transaction is one append-only ledger line. Amount is always
// positive; the type carries the sign.
type Transaction struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID      snowflake.ID    `json:"user_id" gorm:"not null;index"`
	Type        TransactionType `json:"type" gorm:"type:text;not null"`
	Amount      int64           `json:"amount" gorm:"not null"`
	Description string          `json:"description" gorm:"type:text"`
	Reference   string          `json:"reference" gorm:"type:text;index"`
	CreatedAt   time.Time       `json:"created_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "wallet_transactions" }
