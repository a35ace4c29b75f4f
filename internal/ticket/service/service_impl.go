package service

import (
	"context"
	"errors"
	"strings"

	"github.com/billfold/billfold/internal/ticket/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ticket.service"),
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, customerID snowflake.ID, req domain.CreateTicketRequest) (*domain.Ticket, error) {
	subject := strings.TrimSpace(req.Subject)
	message := strings.TrimSpace(req.Message)
	if subject == "" || message == "" {
		return nil, domain.ErrInvalidTicket
	}
	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return nil, domain.ErrInvalidTicket
	}

	ticket := &domain.Ticket{
		ID:         s.genID.Generate(),
		CustomerID: customerID,
		Subject:    subject,
		Message:    message,
		Priority:   priority,
		Status:     domain.StatusOpen,
	}
	if err := s.db.WithContext(ctx).Omit("Replies").Create(ticket).Error; err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := s.db.WithContext(ctx).
		Preload("Replies", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&ticket, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (s *Service) List(ctx context.Context, req domain.ListTicketsRequest) ([]*domain.Ticket, error) {
	q := s.db.WithContext(ctx).Model(&domain.Ticket{})
	if req.CustomerID != 0 {
		q = q.Where("customer_id = ?", req.CustomerID)
	}
	if req.Status != "" {
		if !req.Status.Valid() {
			return nil, domain.ErrInvalidStatus
		}
		q = q.Where("status = ?", req.Status)
	}
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var tickets []*domain.Ticket
	if err := q.Order("created_at DESC").Limit(limit).Find(&tickets).Error; err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Service) Reply(ctx context.Context, id snowflake.ID, authorID snowflake.ID, staff bool, req domain.ReplyRequest) (*domain.Ticket, error) {
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, domain.ErrInvalidTicket
	}

	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.StatusClosed {
		return nil, domain.ErrTicketClosed
	}

	next := domain.StatusCustomerReply
	if staff {
		next = domain.StatusInProgress
		if req.Status != "" {
			if !req.Status.Valid() {
				return nil, domain.ErrInvalidStatus
			}
			next = req.Status
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reply := &domain.Reply{
			ID:       s.genID.Generate(),
			TicketID: ticket.ID,
			AuthorID: authorID,
			Staff:    staff,
			Body:     body,
		}
		if err := tx.Create(reply).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Ticket{}).
			Where("id = ?", ticket.ID).
			Update("status", next).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) UpdateStatus(ctx context.Context, id snowflake.ID, status domain.Status) (*domain.Ticket, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.Status == domain.StatusClosed {
		return nil, domain.ErrTicketClosed
	}
	if err := s.db.WithContext(ctx).Model(&domain.Ticket{}).
		Where("id = ?", ticket.ID).
		Update("status", status).Error; err != nil {
		return nil, err
	}
	ticket.Status = status
	return ticket, nil
}
