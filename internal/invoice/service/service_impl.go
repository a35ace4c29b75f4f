package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	authdomain "github.com/billfold/billfold/internal/auth/domain"
	"github.com/billfold/billfold/internal/clock"
	"github.com/billfold/billfold/internal/config"
	"github.com/billfold/billfold/internal/invoice/domain"
	"github.com/billfold/billfold/internal/notification"
	"github.com/billfold/billfold/internal/observability/metrics"
	"github.com/billfold/billfold/internal/providers/pdf"
	"github.com/billfold/billfold/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	numberPrefix   = "INV"
	numberAttempts = 5
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
	PDF     pdf.Provider
	Users   authdomain.Service
	Sink    notification.Sink `optional:"true"`
	Metrics *metrics.Metrics  `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	billing *config.BillingConfigHolder
	pdf     pdf.Provider
	users   authdomain.Service
	sink    notification.Sink
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("invoice.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		billing: p.Billing,
		pdf:     p.PDF,
		users:   p.Users,
		sink:    p.Sink,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (*domain.Invoice, error) {
	if len(req.Items) == 0 {
		return nil, domain.ErrEmptyItems
	}
	if req.TaxAmount < 0 || req.DiscountAmount < 0 {
		return nil, domain.ErrInvalidAmount
	}

	var subtotal int64
	items := make([]domain.InvoiceItem, 0, len(req.Items))
	for _, in := range req.Items {
		if in.Quantity <= 0 || in.UnitPrice < 0 || strings.TrimSpace(in.Description) == "" {
			return nil, domain.ErrInvalidItem
		}
		amount := in.Quantity * in.UnitPrice
		subtotal += amount
		items = append(items, domain.InvoiceItem{
			ID:          s.genID.Generate(),
			ServiceID:   in.ServiceID,
			Description: strings.TrimSpace(in.Description),
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			Amount:      amount,
		})
	}

	discount := req.DiscountAmount
	if discount > subtotal+req.TaxAmount {
		discount = subtotal + req.TaxAmount
	}

	now := s.clock.Now()
	dueDate := now.AddDate(0, 0, s.billing.Get().DueInDays)
	if req.DueDate != nil {
		dueDate = req.DueDate.UTC()
	}

	invoice := &domain.Invoice{
		CustomerID:     req.CustomerID,
		Subtotal:       subtotal,
		TaxAmount:      req.TaxAmount,
		DiscountAmount: discount,
		TotalAmount:    subtotal + req.TaxAmount - discount,
		Status:         domain.StatusPending,
		DueDate:        dueDate,
		Notes:          strings.TrimSpace(req.Notes),
		Metadata:       datatypes.JSONMap(req.Metadata),
	}

	// Numbering and insert share one transaction. When two checkouts
	// race for the same sequence the loser hits the unique index and
	// retries with a fresh number.
	var lastErr error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		invoice.ID = s.genID.Generate()
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, err := s.nextInvoiceNumber(tx, now)
			if err != nil {
				return err
			}
			invoice.InvoiceNumber = number
			if err := tx.Omit("Items").Create(invoice).Error; err != nil {
				return err
			}
			for i := range items {
				items[i].InvoiceID = invoice.ID
			}
			return tx.Create(&items).Error
		})
		if err == nil {
			invoice.Items = items
			s.metrics.IncInvoiceIssued()
			s.notifyIssued(ctx, invoice)
			return invoice, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		lastErr = err
	}
	s.log.Error("invoice number allocation kept colliding", zap.Error(lastErr))
	return nil, domain.ErrNumberExhausted
}

func (s *Service) nextInvoiceNumber(tx *gorm.DB, now time.Time) (string, error) {
	prefix := fmt.Sprintf("%s-%s-", numberPrefix, now.UTC().Format("20060102"))

	var numbers []string
	if err := tx.Model(&domain.Invoice{}).
		Where("invoice_number LIKE ?", prefix+"%").
		Order("invoice_number DESC").
		Limit(1).
		Pluck("invoice_number", &numbers).Error; err != nil {
		return "", err
	}

	seq := 1
	if len(numbers) > 0 {
		last, err := strconv.Atoi(strings.TrimPrefix(numbers[0], prefix))
		if err != nil {
			return "", fmt.Errorf("malformed invoice number %q: %w", numbers[0], err)
		}
		seq = last + 1
	}
	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateInvoiceRequest) (*domain.Invoice, error) {
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	subtotal := invoice.Subtotal
	var newItems []domain.InvoiceItem
	if len(req.Items) > 0 {
		subtotal = 0
		for _, in := range req.Items {
			if in.Quantity <= 0 || in.UnitPrice < 0 || strings.TrimSpace(in.Description) == "" {
				return nil, domain.ErrInvalidItem
			}
			amount := in.Quantity * in.UnitPrice
			subtotal += amount
			newItems = append(newItems, domain.InvoiceItem{
				ID:          s.genID.Generate(),
				InvoiceID:   invoice.ID,
				ServiceID:   in.ServiceID,
				Description: strings.TrimSpace(in.Description),
				Quantity:    in.Quantity,
				UnitPrice:   in.UnitPrice,
				Amount:      amount,
			})
		}
	}

	tax := invoice.TaxAmount
	if req.TaxAmount != nil {
		if *req.TaxAmount < 0 {
			return nil, domain.ErrInvalidAmount
		}
		tax = *req.TaxAmount
	}
	discount := invoice.DiscountAmount
	if req.DiscountAmount != nil {
		if *req.DiscountAmount < 0 {
			return nil, domain.ErrInvalidAmount
		}
		discount = *req.DiscountAmount
	}
	if discount > subtotal+tax {
		discount = subtotal + tax
	}

	updates := map[string]any{
		"subtotal":        subtotal,
		"tax_amount":      tax,
		"discount_amount": discount,
		"total_amount":    subtotal + tax - discount,
	}
	if req.DueDate != nil {
		updates["due_date"] = req.DueDate.UTC()
	}
	if req.Notes != nil {
		updates["notes"] = strings.TrimSpace(*req.Notes)
	}
	if req.Metadata != nil {
		updates["metadata"] = datatypes.JSONMap(req.Metadata)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if newItems != nil {
			if err := tx.Where("invoice_id = ?", invoice.ID).
				Delete(&domain.InvoiceItem{}).Error; err != nil {
				return err
			}
			if err := tx.Create(&newItems).Error; err != nil {
				return err
			}
		}
		return tx.Model(&domain.Invoice{}).
			Where("id = ?", invoice.ID).
			Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) UpdateStatus(ctx context.Context, id snowflake.ID, status domain.Status) (*domain.Invoice, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&domain.Invoice{}).
		Where("id = ?", invoice.ID).
		Update("status", status).Error; err != nil {
		return nil, err
	}
	invoice.Status = status
	return invoice, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := s.db.WithContext(ctx).
		Preload("Items").
		First(&invoice, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoicesRequest) ([]*domain.Invoice, error) {
	q := s.db.WithContext(ctx).Model(&domain.Invoice{}).Preload("Items")
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

	var invoices []*domain.Invoice
	if err := q.Order("created_at DESC").Limit(limit).Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM payments WHERE invoice_id = ?", invoice.ID).Error; err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ?", invoice.ID).
			Delete(&domain.InvoiceItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Invoice{}, "id = ?", invoice.ID).Error
	})
}

func (s *Service) RenderPDF(ctx context.Context, id snowflake.ID) (io.Reader, error) {
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	billToName := invoice.CustomerID.String()
	billToEmail := ""
	if user, err := s.users.GetUser(ctx, invoice.CustomerID); err == nil {
		billToName = user.DisplayName
		billToEmail = user.Email
	}

	currency := s.billing.Get().Currency
	data := pdf.InvoiceData{
		InvoiceNumber: invoice.InvoiceNumber,
		IssueDate:     invoice.CreatedAt.Format("2006-01-02"),
		DueDate:       invoice.DueDate.Format("2006-01-02"),
		Status:        string(invoice.Status),
		BillToName:    billToName,
		BillToEmail:   billToEmail,
		Subtotal:      formatAmount(invoice.Subtotal, currency),
		Tax:           formatAmount(invoice.TaxAmount, currency),
		Discount:      formatAmount(invoice.DiscountAmount, currency),
		Total:         formatAmount(invoice.TotalAmount, currency),
	}
	for _, item := range invoice.Items {
		data.Items = append(data.Items, pdf.InvoiceItem{
			Description: item.Description,
			Qty:         item.Quantity,
			UnitPrice:   formatAmount(item.UnitPrice, currency),
			Amount:      formatAmount(item.Amount, currency),
		})
	}
	return s.pdf.GenerateInvoice(ctx, data)
}

func (s *Service) notifyIssued(ctx context.Context, invoice *domain.Invoice) {
	if s.sink == nil {
		return
	}
	user, err := s.users.GetUser(ctx, invoice.CustomerID)
	if err != nil {
		s.log.Warn("cannot notify customer of new invoice",
			zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
		return
	}
	currency := s.billing.Get().Currency
	notification.Dispatch(ctx, s.sink, s.log, notification.Message{
		Recipient: user.Email,
		Channel:   notification.ChannelEmail,
		Template:  notification.TemplateInvoiceIssued,
		Payload: map[string]any{
			"display_name":   user.DisplayName,
			"invoice_number": invoice.InvoiceNumber,
			"amount":         formatAmount(invoice.TotalAmount, currency),
			"due_date":       invoice.DueDate.Format("2006-01-02"),
		},
	})
}

func formatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency)
}
