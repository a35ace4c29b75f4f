package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateServiceRequest struct {
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Category     string       `json:"category"`
	Price        int64        `json:"price"`
	Recurring    bool         `json:"recurring"`
	BillingCycle BillingCycle `json:"billing_cycle"`
}

type UpdateServiceRequest struct {
	Name         *string       `json:"name"`
	Description  *string       `json:"description"`
	Category     *string       `json:"category"`
	Price        *int64        `json:"price"`
	Recurring    *bool         `json:"recurring"`
	BillingCycle *BillingCycle `json:"billing_cycle"`
	Active       *bool         `json:"active"`
}

type ListServicesRequest struct {
	Category   string
	ActiveOnly bool
	Limit      int
}

// Catalog manages the sellable services.
type Catalog interface {
	Create(ctx context.Context, req CreateServiceRequest) (*Service, error)
	Update(ctx context.Context, id snowflake.ID, req UpdateServiceRequest) (*Service, error)
	// Delete hard-deletes an unreferenced service and deactivates one
	// that orders already point at.
	Delete(ctx context.Context, id snowflake.ID) error
	Get(ctx context.Context, id snowflake.ID) (*Service, error)
	List(ctx context.Context, req ListServicesRequest) ([]*Service, error)
}

var (
	ErrServiceNotFound = errors.New("service_not_found")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrInvalidCycle    = errors.New("invalid_billing_cycle")
	ErrServiceInactive = errors.New("service_inactive")
)
