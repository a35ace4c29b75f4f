// Package seed bootstraps the first admin account so a fresh install
// can be administered immediately.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	authdomain "github.com/billfold/billfold/internal/auth/domain"
	"github.com/billfold/billfold/internal/auth/password"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// EnsureAdmin creates the bootstrap admin user when no account with the
// configured email exists. It never touches an existing account.
func EnsureAdmin(db *gorm.DB, email, plaintext string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || plaintext == "" {
		return nil
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user authdomain.User
		err := tx.Where("email = ?", email).First(&user).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := password.Hash(plaintext)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		return tx.Create(&authdomain.User{
			ID:           node.Generate(),
			Email:        email,
			PasswordHash: hashed,
			DisplayName:  "Administrator",
			Role:         authdomain.RoleAdmin,
			Status:       authdomain.UserStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}).Error
	})
}
