// Package domain contains the account and session models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role gates what an authenticated user may do.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleBusiness Role = "business"
	RoleCustomer Role = "customer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleBusiness, RoleCustomer:
		return true
	default:
		return false
	}
}

// Staff reports whether the role belongs to back-office personnel.
func (r Role) Staff() bool {
	return r == RoleAdmin || r == RoleStaff
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// User is an account. Users are never hard-deleted, only deactivated.
type User struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	Email        string       `json:"email" gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string       `json:"-" gorm:"type:text;not null"`
	DisplayName  string       `json:"display_name" gorm:"type:text"`
	Role         Role         `json:"role" gorm:"type:text;not null;default:'customer'"`
	Status       UserStatus   `json:"status" gorm:"type:text;not null;default:'active'"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null"`
}

func (User) TableName() string { return "users" }

// Session is a bearer-token session. The token itself is never stored,
// only its SHA-256 digest.
type Session struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    snowflake.ID `gorm:"not null;index"`
	TokenHash string       `gorm:"type:text;not null;uniqueIndex"`
	ExpiresAt time.Time    `gorm:"not null"`
	RevokedAt *time.Time   `gorm:""`
	CreatedAt time.Time    `gorm:"not null"`
}

func (Session) TableName() string { return "sessions" }

// Principal is the authenticated identity passed into every operation.
type Principal struct {
	UserID snowflake.ID
	Role   Role
}
