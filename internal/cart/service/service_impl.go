package service

import (
	"context"
	"errors"

	cartdomain "github.com/billfold/billfold/internal/cart/domain"
	catalogdomain "github.com/billfold/billfold/internal/catalog/domain"
	coupondomain "github.com/billfold/billfold/internal/coupon/domain"
	"github.com/billfold/billfold/pkg/repository"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Catalog catalogdomain.Catalog
	Coupons coupondomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	catalog catalogdomain.Catalog
	coupons coupondomain.Service

	items   repository.Repository[cartdomain.Item]
	applied repository.Repository[cartdomain.AppliedCoupon]
}

func NewService(p Params) cartdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("cart.service"),
		genID:   p.GenID,
		catalog: p.Catalog,
		coupons: p.Coupons,

		items:   repository.ProvideStore[cartdomain.Item](p.DB),
		applied: repository.ProvideStore[cartdomain.AppliedCoupon](p.DB),
	}
}

func (s *Service) AddItem(ctx context.Context, userID snowflake.ID, serviceID snowflake.ID, quantity int64) (*cartdomain.Item, error) {
	if quantity <= 0 {
		return nil, cartdomain.ErrInvalidQuantity
	}

	svc, err := s.catalog.Get(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, catalogdomain.ErrServiceInactive
	}

	existing, err := s.items.FindOne(ctx, &cartdomain.Item{UserID: userID, ServiceID: serviceID})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		newQty := existing.Quantity + quantity
		if err := s.items.Update(ctx, existing.ID.String(), map[string]any{"quantity": newQty}); err != nil {
			return nil, err
		}
		existing.Quantity = newQty
		return existing, nil
	}

	item := &cartdomain.Item{
		ID:           s.genID.Generate(),
		UserID:       userID,
		ServiceID:    serviceID,
		ServiceName:  svc.Name,
		Quantity:     quantity,
		UnitPrice:    svc.Price,
		Recurring:    svc.Recurring,
		BillingCycle: svc.BillingCycle,
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) UpdateItem(ctx context.Context, userID snowflake.ID, itemID snowflake.ID, quantity int64) (*cartdomain.Item, error) {
	if quantity <= 0 {
		return nil, cartdomain.ErrInvalidQuantity
	}
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.items.Update(ctx, item.ID.String(), map[string]any{"quantity": quantity}); err != nil {
		return nil, err
	}
	item.Quantity = quantity
	return item, nil
}

func (s *Service) RemoveItem(ctx context.Context, userID snowflake.ID, itemID snowflake.ID) error {
	item, err := s.ownedItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	return s.items.Delete(ctx, item.ID.String())
}

func (s *Service) Get(ctx context.Context, userID snowflake.ID) (*cartdomain.Cart, error) {
	items, err := s.items.Find(ctx, &cartdomain.Item{UserID: userID})
	if err != nil {
		return nil, err
	}

	cart := &cartdomain.Cart{Items: items}
	for _, item := range items {
		cart.Subtotal += item.LineTotal()
	}

	applied, err := s.applied.FindOne(ctx, &cartdomain.AppliedCoupon{UserID: userID})
	if err != nil {
		return nil, err
	}
	if applied != nil {
		cart.Coupon = applied
		coupon, err := s.coupons.Get(ctx, applied.CouponID)
		if err != nil && !errors.Is(err, coupondomain.ErrCouponNotFound) {
			return nil, err
		}
		if coupon != nil {
			cart.Discount = coupon.DiscountFor(cart.Subtotal)
		}
	}
	return cart, nil
}

func (s *Service) ApplyCoupon(ctx context.Context, userID snowflake.ID, code string) (*cartdomain.Cart, error) {
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, cartdomain.ErrCartEmpty
	}

	coupon, err := s.coupons.Validate(ctx, userID, code, cart.Subtotal)
	if err != nil {
		return nil, err
	}

	// One coupon per cart: replace any previous application.
	if cart.Coupon != nil {
		if err := s.applied.Delete(ctx, cart.Coupon.ID.String()); err != nil {
			return nil, err
		}
	}
	applied := &cartdomain.AppliedCoupon{
		ID:       s.genID.Generate(),
		UserID:   userID,
		CouponID: coupon.ID,
		Code:     coupon.Code,
	}
	if err := s.applied.Create(ctx, applied); err != nil {
		return nil, err
	}

	cart.Coupon = applied
	cart.Discount = coupon.DiscountFor(cart.Subtotal)
	return cart, nil
}

func (s *Service) RemoveCoupon(ctx context.Context, userID snowflake.ID) error {
	applied, err := s.applied.FindOne(ctx, &cartdomain.AppliedCoupon{UserID: userID})
	if err != nil {
		return err
	}
	if applied == nil {
		return nil
	}
	return s.applied.Delete(ctx, applied.ID.String())
}

func (s *Service) ClearTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error {
	if err := tx.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&cartdomain.Item{}).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&cartdomain.AppliedCoupon{}).Error
}

func (s *Service) ownedItem(ctx context.Context, userID snowflake.ID, itemID snowflake.ID) (*cartdomain.Item, error) {
	item, err := s.items.FindOne(ctx, &cartdomain.Item{ID: itemID})
	if err != nil {
		return nil, err
	}
	if item == nil || item.UserID != userID {
		return nil, cartdomain.ErrItemNotFound
	}
	return item, nil
}
