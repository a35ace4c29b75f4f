package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	cartdomain "github.com/billfold/billfold/internal/cart/domain"
	"github.com/billfold/billfold/internal/clock"
	"github.com/billfold/billfold/internal/config"
	coupondomain "github.com/billfold/billfold/internal/coupon/domain"
	invoicedomain "github.com/billfold/billfold/internal/invoice/domain"
	"github.com/billfold/billfold/internal/order/domain"
	paymentdomain "github.com/billfold/billfold/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Billing  *config.BillingConfigHolder
	Cart     cartdomain.Service
	Coupons  coupondomain.Service
	Invoices invoicedomain.Service
	Payments paymentdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	billing  *config.BillingConfigHolder
	cart     cartdomain.Service
	coupons  coupondomain.Service
	invoices invoicedomain.Service
	payments paymentdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("order.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		billing:  p.Billing,
		cart:     p.Cart,
		coupons:  p.Coupons,
		invoices: p.Invoices,
		payments: p.Payments,
	}
}

func (s *Service) Checkout(ctx context.Context, userID snowflake.ID, req domain.CheckoutRequest) (*domain.CheckoutResult, error) {
	if !req.Method.Valid() {
		return nil, paymentdomain.ErrInvalidMethod
	}

	cart, err := s.cart.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, cartdomain.ErrCartEmpty
	}

	subtotal := cart.Subtotal

	var coupon *coupondomain.Coupon
	var discount int64
	if cart.Coupon != nil {
		coupon, err = s.coupons.Validate(ctx, userID, cart.Coupon.Code, subtotal)
		if err != nil {
			return nil, err
		}
		discount = coupon.DiscountFor(subtotal)
	}

	tax := roundTax(subtotal, s.billing.Get().TaxRate)

	items := make([]invoicedomain.ItemInput, 0, len(cart.Items))
	for _, line := range cart.Items {
		items = append(items, invoicedomain.ItemInput{
			ServiceID:   line.ServiceID,
			Description: fmt.Sprintf("%s x%d (%s)", line.ServiceName, line.Quantity, line.BillingCycle),
			Quantity:    1,
			UnitPrice:   line.LineTotal(),
		})
	}

	invoice, err := s.invoices.Create(ctx, invoicedomain.CreateInvoiceRequest{
		CustomerID:     userID,
		Items:          items,
		TaxAmount:      tax,
		DiscountAmount: discount,
		Notes:          req.BillingAddress,
		Metadata:       map[string]any{"source": "checkout"},
	})
	if err != nil {
		return nil, err
	}

	orders := make([]*domain.Order, 0, len(cart.Items))
	for _, line := range cart.Items {
		orders = append(orders, &domain.Order{
			ID:           s.genID.Generate(),
			CustomerID:   userID,
			ServiceID:    line.ServiceID,
			ServiceName:  line.ServiceName,
			Quantity:     line.Quantity,
			Price:        line.LineTotal(),
			BillingCycle: line.BillingCycle,
			Status:       domain.StatusPending,
			InvoiceID:    invoice.ID,
		})
	}
	if err := s.db.WithContext(ctx).Create(&orders).Error; err != nil {
		return nil, err
	}

	result, err := s.payments.ProcessPayment(ctx, userID, invoice.ID, invoice.TotalAmount, req.Method)
	if err != nil {
		// Orders and the pending invoice stay behind so the customer
		// can retry through the invoice pay endpoint.
		s.log.Info("checkout payment failed",
			zap.String("invoice_id", invoice.ID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	if result.Pending {
		return &domain.CheckoutResult{
			Status:  domain.CheckoutPending,
			Orders:  orders,
			Invoice: invoice,
		}, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Order{}).
			Where("invoice_id = ?", invoice.ID).
			Update("status", domain.StatusProcessing).Error; err != nil {
			return err
		}
		if coupon != nil {
			if err := s.coupons.Redeem(ctx, tx, userID, coupon.ID, invoice.InvoiceNumber); err != nil {
				return err
			}
		}
		return s.cart.ClearTx(ctx, tx, userID)
	})
	if err != nil {
		return nil, err
	}

	for _, order := range orders {
		order.Status = domain.StatusProcessing
	}
	invoice.Status = invoicedomain.StatusPaid
	return &domain.CheckoutResult{
		Status:  domain.CheckoutPaid,
		Orders:  orders,
		Invoice: invoice,
		Payment: result.Payment,
	}, nil
}

func roundTax(subtotal int64, rate float64) int64 {
	if subtotal <= 0 || rate <= 0 {
		return 0
	}
	return int64(math.Round(float64(subtotal) * rate))
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := s.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *Service) List(ctx context.Context, req domain.ListOrdersRequest) ([]*domain.Order, error) {
	q := s.db.WithContext(ctx).Model(&domain.Order{})
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

	var orders []*domain.Order
	if err := q.Order("created_at DESC").Limit(limit).Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Service) Cancel(ctx context.Context, userID snowflake.ID, id snowflake.ID) (*domain.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.CustomerID != userID {
		return nil, domain.ErrOrderNotFound
	}
	if order.Status != domain.StatusPending {
		return nil, domain.ErrNotCancelable
	}
	if err := s.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ?", order.ID).
		Update("status", domain.StatusCanceled).Error; err != nil {
		return nil, err
	}
	order.Status = domain.StatusCanceled
	return order, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id snowflake.ID, status domain.Status) (*domain.Order, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == domain.StatusCompleted {
		return nil, domain.ErrOrderImmutable
	}
	if err := s.db.WithContext(ctx).Model(&domain.Order{}).
		Where("id = ?", order.ID).
		Update("status", status).Error; err != nil {
		return nil, err
	}
	order.Status = status
	return order, nil
}
