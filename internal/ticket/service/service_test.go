package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/billfold/billfold/internal/ticket/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()

	dbConn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&domain.Ticket{}, &domain.Reply{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	return NewService(Params{DB: dbConn, Log: zap.NewNop(), GenID: node})
}

func TestCreateDefaultsToMediumPriority(t *testing.T) {
	svc := newTestService(t)

	ticket, err := svc.Create(context.Background(), snowflake.ID(7), domain.CreateTicketRequest{
		Subject: "Billing question",
		Message: "Why was I charged twice?",
	})
	if err != nil {
		t.Fatalf("failed to create ticket: %v", err)
	}
	if ticket.Priority != domain.PriorityMedium {
		t.Fatalf("expected medium priority, got %s", ticket.Priority)
	}
	if ticket.Status != domain.StatusOpen {
		t.Fatalf("expected open ticket, got %s", ticket.Status)
	}

	if _, err := svc.Create(context.Background(), snowflake.ID(7), domain.CreateTicketRequest{Subject: "  "}); !errors.Is(err, domain.ErrInvalidTicket) {
		t.Fatalf("expected ErrInvalidTicket, got %v", err)
	}
}

func TestReplyMovesStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	customer := snowflake.ID(7)
	agent := snowflake.ID(9)

	ticket, err := svc.Create(ctx, customer, domain.CreateTicketRequest{
		Subject: "Billing question",
		Message: "Why was I charged twice?",
	})
	if err != nil {
		t.Fatalf("failed to create ticket: %v", err)
	}

	replied, err := svc.Reply(ctx, ticket.ID, agent, true, domain.ReplyRequest{Body: "Looking into it."})
	if err != nil {
		t.Fatalf("failed to reply: %v", err)
	}
	if replied.Status != domain.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", replied.Status)
	}

	replied, err = svc.Reply(ctx, ticket.ID, customer, false, domain.ReplyRequest{Body: "Any update?"})
	if err != nil {
		t.Fatalf("failed to reply: %v", err)
	}
	if replied.Status != domain.StatusCustomerReply {
		t.Fatalf("expected customer_reply, got %s", replied.Status)
	}
	if len(replied.Replies) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(replied.Replies))
	}
}

func TestStaffReplyPinsStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ticket, err := svc.Create(ctx, snowflake.ID(7), domain.CreateTicketRequest{
		Subject: "Billing question",
		Message: "Why was I charged twice?",
	})
	if err != nil {
		t.Fatalf("failed to create ticket: %v", err)
	}

	replied, err := svc.Reply(ctx, ticket.ID, snowflake.ID(9), true, domain.ReplyRequest{
		Body:   "Waiting on the gateway.",
		Status: domain.StatusOnHold,
	})
	if err != nil {
		t.Fatalf("failed to reply: %v", err)
	}
	if replied.Status != domain.StatusOnHold {
		t.Fatalf("expected on_hold, got %s", replied.Status)
	}
}

func TestClosedTicketIsTerminal(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	ticket, err := svc.Create(ctx, snowflake.ID(7), domain.CreateTicketRequest{
		Subject: "Billing question",
		Message: "Why was I charged twice?",
	})
	if err != nil {
		t.Fatalf("failed to create ticket: %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, ticket.ID, domain.StatusClosed); err != nil {
		t.Fatalf("failed to close ticket: %v", err)
	}

	if _, err := svc.Reply(ctx, ticket.ID, snowflake.ID(7), false, domain.ReplyRequest{Body: "Hello?"}); !errors.Is(err, domain.ErrTicketClosed) {
		t.Fatalf("expected ErrTicketClosed, got %v", err)
	}
	if _, err := svc.UpdateStatus(ctx, ticket.ID, domain.StatusOpen); !errors.Is(err, domain.ErrTicketClosed) {
		t.Fatalf("expected ErrTicketClosed, got %v", err)
	}
}
