package service

import (
	"context"
	"errors"
	"fmt"

	authdomain "github.com/billfold/billfold/internal/auth/domain"
	"github.com/billfold/billfold/internal/clock"
	"github.com/billfold/billfold/internal/config"
	invoicedomain "github.com/billfold/billfold/internal/invoice/domain"
	"github.com/billfold/billfold/internal/notification"
	"github.com/billfold/billfold/internal/observability/metrics"
	"github.com/billfold/billfold/internal/payment/adapters"
	"github.com/billfold/billfold/internal/payment/domain"
	walletdomain "github.com/billfold/billfold/internal/wallet/domain"
	"github.com/billfold/billfold/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Billing  *config.BillingConfigHolder
	Registry *adapters.Registry
	Wallet   walletdomain.Service
	Users    authdomain.Service
	Sink     notification.Sink `optional:"true"`
	Metrics  *metrics.Metrics  `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	billing  *config.BillingConfigHolder
	registry *adapters.Registry
	wallet   walletdomain.Service
	users    authdomain.Service
	sink     notification.Sink
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		billing:  p.Billing,
		registry: p.Registry,
		wallet:   p.Wallet,
		users:    p.Users,
		sink:     p.Sink,
		metrics:  p.Metrics,
	}
}

func (s *Service) ProcessPayment(ctx context.Context, userID snowflake.ID, invoiceID snowflake.ID, amount int64, method domain.Method) (*domain.ProcessPaymentResult, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !method.Valid() {
		return nil, domain.ErrInvalidMethod
	}

	invoice, err := s.loadInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.CustomerID != userID {
		return nil, domain.ErrNotInvoiceOwner
	}
	if !invoice.Payable() {
		return nil, domain.ErrInvoiceNotPayable
	}
	if amount != invoice.TotalAmount {
		return nil, domain.ErrAmountMismatch
	}

	if method == domain.MethodWallet {
		return s.payFromWallet(ctx, userID, invoice, amount)
	}
	return s.payThroughGateway(ctx, userID, invoice, amount, method)
}

func (s *Service) payFromWallet(ctx context.Context, userID snowflake.ID, invoice *invoicedomain.Invoice, amount int64) (*domain.ProcessPaymentResult, error) {
	var payment *domain.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.wallet.DebitTx(ctx, tx, userID, amount,
			fmt.Sprintf("payment for invoice %s", invoice.InvoiceNumber),
			invoice.InvoiceNumber,
		); err != nil {
			return err
		}
		var err error
		payment, err = s.settleTx(ctx, tx, invoice, userID, amount, domain.MethodWallet, "")
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPayment(string(domain.MethodWallet), "completed")
	s.notifyConfirmation(ctx, invoice, payment)
	return &domain.ProcessPaymentResult{Payment: payment}, nil
}

func (s *Service) payThroughGateway(ctx context.Context, userID snowflake.ID, invoice *invoicedomain.Invoice, amount int64, method domain.Method) (*domain.ProcessPaymentResult, error) {
	adapter, err := s.adapterFor(string(method))
	if err != nil {
		return nil, err
	}

	billing := s.billing.Get()
	chargeCtx, cancel := context.WithTimeout(ctx, billing.GatewayTimeout())
	defer cancel()

	result, err := adapter.Charge(chargeCtx, domain.ChargeRequest{
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		CustomerID:    invoice.CustomerID,
		Amount:        amount,
		Currency:      billing.Currency,
	})
	if err != nil {
		s.metrics.RecordPayment(string(method), "error")
		return nil, err
	}

	switch result.Status {
	case domain.ChargeSucceeded:
		var payment *domain.Payment
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			payment, err = s.settleTx(ctx, tx, invoice, userID, amount, method, result.TransactionID)
			return err
		})
		if err != nil {
			return nil, err
		}
		s.metrics.RecordPayment(string(method), "completed")
		s.notifyConfirmation(ctx, invoice, payment)
		return &domain.ProcessPaymentResult{Payment: payment}, nil

	case domain.ChargePending:
		s.metrics.RecordPayment(string(method), "pending_verification")
		s.log.Info("charge pending gateway verification",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("method", string(method)),
		)
		return &domain.ProcessPaymentResult{Pending: true}, nil

	default:
		s.metrics.RecordPayment(string(method), "declined")
		s.log.Info("charge declined",
			zap.String("invoice_id", invoice.ID.String()),
			zap.String("method", string(method)),
			zap.String("reason", result.Reason),
		)
		return nil, domain.ErrPaymentDeclined
	}
}

// settleTx flips the invoice to paid and writes the payment row inside
// the caller's transaction. The status update is conditional so two
// settlements racing for the same invoice produce a single payment row.
func (s *Service) settleTx(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, userID snowflake.ID, amount int64, method domain.Method, transactionID string) (*domain.Payment, error) {
	res := tx.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Where("id = ? AND status IN ?", invoice.ID,
			[]invoicedomain.Status{invoicedomain.StatusPending, invoicedomain.StatusOutstanding}).
		Update("status", invoicedomain.StatusPaid)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrInvoiceNotPayable
	}

	payment := &domain.Payment{
		ID:            s.genID.Generate(),
		InvoiceID:     invoice.ID,
		UserID:        userID,
		Amount:        amount,
		Method:        method,
		TransactionID: transactionID,
		Status:        domain.StatusCompleted,
		PaymentDate:   s.clock.Now(),
	}
	if err := tx.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *Service) ProcessEvent(ctx context.Context, event *domain.PaymentEvent) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	now := s.clock.Now()
	record := &domain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		InvoiceID:       event.InvoiceID,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      now,
	}

	inserted := true
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return err
		}
		inserted = false
		var existing domain.EventRecord
		err := s.db.WithContext(ctx).
			First(&existing, "provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).Error
		if err != nil {
			return err
		}
		if existing.ProcessedAt != nil {
			return domain.ErrEventAlreadyProcessed
		}
		record = &existing
	}

	switch event.Type {
	case domain.EventTypePaymentSucceeded:
		if err := s.settleFromEvent(ctx, event); err != nil {
			return err
		}
	case domain.EventTypePaymentFailed:
		if err := s.markOutstanding(ctx, event); err != nil {
			return err
		}
	case domain.EventTypeRefunded:
		if err := s.refundFromEvent(ctx, event); err != nil {
			return err
		}
	}

	if err := s.db.WithContext(ctx).Model(&domain.EventRecord{}).
		Where("id = ?", record.ID).
		Update("processed_at", now).Error; err != nil {
		return err
	}

	if inserted {
		s.metrics.RecordPaymentEvent(event.Provider, event.Type)
	}
	return nil
}

func validateEvent(event *domain.PaymentEvent) error {
	if event == nil {
		return domain.ErrInvalidEvent
	}
	if event.Provider == "" || event.ProviderEventID == "" {
		return domain.ErrInvalidEvent
	}
	if event.InvoiceID == 0 {
		return domain.ErrInvalidEvent
	}
	switch event.Type {
	case domain.EventTypePaymentSucceeded, domain.EventTypeRefunded:
		if event.Amount <= 0 {
			return domain.ErrInvalidAmount
		}
	case domain.EventTypePaymentFailed:
	default:
		return domain.ErrInvalidEvent
	}
	return nil
}

func (s *Service) settleFromEvent(ctx context.Context, event *domain.PaymentEvent) error {
	var payment *domain.Payment
	var invoice *invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		invoice, err = s.loadInvoice(ctx, tx, event.InvoiceID)
		if err != nil {
			return err
		}
		if invoice.Status == invoicedomain.StatusPaid {
			// Settled synchronously before the webhook arrived.
			return nil
		}
		if !invoice.Payable() {
			s.log.Warn("succeeded event for unpayable invoice",
				zap.String("invoice_id", invoice.ID.String()),
				zap.String("status", string(invoice.Status)),
			)
			return nil
		}
		method := domain.Method(event.Provider)
		payment, err = s.settleTx(ctx, tx, invoice, invoice.CustomerID, event.Amount, method, event.TransactionID)
		if errors.Is(err, domain.ErrInvoiceNotPayable) {
			// Lost the race to another settlement.
			payment = nil
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	if payment != nil {
		s.metrics.RecordPayment(event.Provider, "completed")
		s.notifyConfirmation(ctx, invoice, payment)
	}
	return nil
}

func (s *Service) markOutstanding(ctx context.Context, event *domain.PaymentEvent) error {
	return s.db.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Where("id = ? AND status = ?", event.InvoiceID, invoicedomain.StatusPending).
		Update("status", invoicedomain.StatusOutstanding).Error
}

func (s *Service) refundFromEvent(ctx context.Context, event *domain.PaymentEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment domain.Payment
		err := tx.Where("invoice_id = ? AND status = ?", event.InvoiceID, domain.StatusCompleted).
			Order("created_at DESC").
			First(&payment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Warn("refund event without a completed payment",
				zap.String("invoice_id", event.InvoiceID.String()))
			return nil
		}
		if err != nil {
			return err
		}
		return s.refundTx(ctx, tx, &payment)
	})
}

func (s *Service) Refund(ctx context.Context, paymentID snowflake.ID) (*domain.Payment, error) {
	payment, err := s.Get(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.StatusCompleted {
		return nil, domain.ErrNotRefundable
	}
	invoice, err := s.loadInvoice(ctx, s.db, payment.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != invoicedomain.StatusPaid {
		return nil, domain.ErrNotRefundable
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.refundTx(ctx, tx, payment)
	})
	if err != nil {
		return nil, err
	}
	payment.Status = domain.StatusRefunded
	return payment, nil
}

func (s *Service) refundTx(ctx context.Context, tx *gorm.DB, payment *domain.Payment) error {
	if err := tx.WithContext(ctx).Model(&domain.Payment{}).
		Where("id = ?", payment.ID).
		Update("status", domain.StatusRefunded).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Model(&invoicedomain.Invoice{}).
		Where("id = ?", payment.InvoiceID).
		Update("status", invoicedomain.StatusRefunded).Error
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := s.db.WithContext(ctx).First(&payment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (s *Service) List(ctx context.Context, req domain.ListPaymentsRequest) ([]*domain.Payment, error) {
	q := s.db.WithContext(ctx).Model(&domain.Payment{})
	if req.UserID != 0 {
		q = q.Where("user_id = ?", req.UserID)
	}
	if req.InvoiceID != 0 {
		q = q.Where("invoice_id = ?", req.InvoiceID)
	}
	limit := req.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var payments []*domain.Payment
	if err := q.Order("created_at DESC").Limit(limit).Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Service) adapterFor(provider string) (domain.PaymentAdapter, error) {
	billing := s.billing.Get()
	cfg := domain.AdapterConfig{Timeout: billing.GatewayTimeout()}
	switch provider {
	case "card":
		cfg.Endpoint = s.cfg.GatewayCardEndpoint
		cfg.Secret = s.cfg.GatewayCardSecret
	case "paypal":
		cfg.Endpoint = s.cfg.GatewayPaypalEndpoint
		cfg.Secret = s.cfg.GatewayPaypalSecret
	}
	return s.registry.NewAdapter(provider, cfg)
}

func (s *Service) loadInvoice(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).First(&invoice, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (s *Service) notifyConfirmation(ctx context.Context, invoice *invoicedomain.Invoice, payment *domain.Payment) {
	if s.sink == nil {
		return
	}
	user, err := s.users.GetUser(ctx, invoice.CustomerID)
	if err != nil {
		s.log.Warn("cannot notify customer of payment",
			zap.String("invoice_id", invoice.ID.String()), zap.Error(err))
		return
	}
	currency := s.billing.Get().Currency
	notification.Dispatch(ctx, s.sink, s.log, notification.Message{
		Recipient: user.Email,
		Channel:   notification.ChannelEmail,
		Template:  notification.TemplatePaymentConfirmation,
		Payload: map[string]any{
			"display_name":   user.DisplayName,
			"invoice_number": invoice.InvoiceNumber,
			"amount":         fmt.Sprintf("%d.%02d %s", payment.Amount/100, payment.Amount%100, currency),
			"transaction_id": payment.TransactionID,
		},
	})
}
