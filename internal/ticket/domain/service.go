package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateTicketRequest struct {
	Subject  string   `json:"subject"`
	Message  string   `json:"message"`
	Priority Priority `json:"priority"`
}

type ReplyRequest struct {
	Body string `json:"body"`
	// Status lets staff pin a status with the reply, e.g. on_hold.
	Status Status `json:"status,omitempty"`
}

type ListTicketsRequest struct {
	CustomerID snowflake.ID
	Status     Status
	Limit      int
}

type Service interface {
	Create(ctx context.Context, customerID snowflake.ID, req CreateTicketRequest) (*Ticket, error)
	Get(ctx context.Context, id snowflake.ID) (*Ticket, error)
	List(ctx context.Context, req ListTicketsRequest) ([]*Ticket, error)
	// Reply appends to the thread. A staff reply flips the ticket to
	// in_progress (or the status it pins), a customer reply flips it
	// to customer_reply.
	Reply(ctx context.Context, id snowflake.ID, authorID snowflake.ID, staff bool, req ReplyRequest) (*Ticket, error)
	UpdateStatus(ctx context.Context, id snowflake.ID, status Status) (*Ticket, error)
}

var (
	ErrTicketNotFound = errors.New("ticket_not_found")
	ErrTicketClosed   = errors.New("ticket_closed")
	ErrInvalidTicket  = errors.New("invalid_ticket")
	ErrInvalidStatus  = errors.New("invalid_ticket_status")
)
