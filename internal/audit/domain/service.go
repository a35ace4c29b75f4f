package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Entry struct {
	ActorID    *snowflake.ID
	ActorRole  string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListRequest struct {
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
	Limit      int
}

type Service interface {
	// Record appends an entry to the audit trail. Failures are logged
	// but must never abort the operation being audited.
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListRequest) ([]AuditLog, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
