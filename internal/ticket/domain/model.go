// Package domain contains the support ticket models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

type Status string

const (
	StatusOpen          Status = "open"
	StatusInProgress    Status = "in_progress"
	StatusOnHold        Status = "on_hold"
	StatusCustomerReply Status = "customer_reply"
	StatusClosed        Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusOnHold, StatusCustomerReply, StatusClosed:
		return true
	default:
		return false
	}
}

// Ticket is a customer support request. Closed is terminal.
type Ticket struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	CustomerID snowflake.ID `json:"customer_id" gorm:"not null;index"`
	Subject    string       `json:"subject" gorm:"type:text;not null"`
	Message    string       `json:"message" gorm:"type:text;not null"`
	Priority   Priority     `json:"priority" gorm:"type:text;not null;default:'medium'"`
	Status     Status       `json:"status" gorm:"type:text;not null;default:'open';index"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null"`

	Replies []Reply `json:"replies" gorm:"foreignKey:TicketID"`
}

func (Ticket) TableName() string { return "tickets" }

type Reply struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	TicketID  snowflake.ID `json:"ticket_id" gorm:"not null;index"`
	AuthorID  snowflake.ID `json:"author_id" gorm:"not null"`
	Staff     bool         `json:"staff" gorm:"not null;default:false"`
	Body      string       `json:"body" gorm:"type:text;not null"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (Reply) TableName() string { return "ticket_replies" }
