package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Role        Role   `json:"role,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
}

type ChangePasswordRequest struct {
	Current string `json:"current_password"`
	New     string `json:"new_password"`
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	// Authenticate resolves a bearer token into a Principal.
	Authenticate(ctx context.Context, token string) (Principal, error)
	GetUser(ctx context.Context, id snowflake.ID) (*User, error)
	UpdateProfile(ctx context.Context, id snowflake.ID, req UpdateProfileRequest) (*User, error)
	ChangePassword(ctx context.Context, id snowflake.ID, req ChangePasswordRequest) error
	SetStatus(ctx context.Context, id snowflake.ID, status UserStatus) error
}
