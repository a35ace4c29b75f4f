package service

import (
	"context"
	"strings"

	"github.com/billfold/billfold/internal/clock"
	"github.com/billfold/billfold/internal/coupon/domain"
	"github.com/billfold/billfold/pkg/db"
	"github.com/billfold/billfold/pkg/repository"
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
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	coupons     repository.Repository[domain.Coupon]
	redemptions repository.Repository[domain.Redemption]
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("coupon.service"),
		genID: p.GenID,
		clock: p.Clock,

		coupons:     repository.ProvideStore[domain.Coupon](p.DB),
		redemptions: repository.ProvideStore[domain.Redemption](p.DB),
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *Service) Create(ctx context.Context, req domain.CreateCouponRequest) (*domain.Coupon, error) {
	code := normalizeCode(req.Code)
	if code == "" || !req.Type.Valid() || req.Value <= 0 {
		return nil, domain.ErrInvalidCoupon
	}
	if req.Type == domain.TypePercentage && req.Value > 100 {
		return nil, domain.ErrInvalidCoupon
	}
	if req.MaxUses < 0 || req.MinOrderValue < 0 {
		return nil, domain.ErrInvalidCoupon
	}

	coupon := &domain.Coupon{
		ID:            s.genID.Generate(),
		Code:          code,
		Type:          req.Type,
		Value:         req.Value,
		ExpiresAt:     req.ExpiresAt,
		MaxUses:       req.MaxUses,
		PerUserOnce:   req.PerUserOnce,
		MinOrderValue: req.MinOrderValue,
		Active:        true,
	}
	if err := s.coupons.Create(ctx, coupon); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrCouponExists
		}
		return nil, err
	}
	return coupon, nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateCouponRequest) (*domain.Coupon, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.Value != nil {
		if *req.Value <= 0 {
			return nil, domain.ErrInvalidCoupon
		}
		updates["value"] = *req.Value
	}
	if req.ExpiresAt != nil {
		updates["expires_at"] = *req.ExpiresAt
	}
	if req.MaxUses != nil {
		if *req.MaxUses < 0 {
			return nil, domain.ErrInvalidCoupon
		}
		updates["max_uses"] = *req.MaxUses
	}
	if req.PerUserOnce != nil {
		updates["per_user_once"] = *req.PerUserOnce
	}
	if req.MinOrderValue != nil {
		if *req.MinOrderValue < 0 {
			return nil, domain.ErrInvalidCoupon
		}
		updates["min_order_value"] = *req.MinOrderValue
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(updates) > 0 {
		if err := s.coupons.Update(ctx, id.String(), updates); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.coupons.Delete(ctx, id.String())
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Coupon, error) {
	coupon, err := s.coupons.FindOne(ctx, &domain.Coupon{ID: id})
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, domain.ErrCouponNotFound
	}
	return coupon, nil
}

func (s *Service) List(ctx context.Context) ([]*domain.Coupon, error) {
	return s.coupons.Find(ctx, &domain.Coupon{})
}

func (s *Service) Validate(ctx context.Context, userID snowflake.ID, code string, subtotal int64) (*domain.Coupon, error) {
	coupon, err := s.coupons.FindOne(ctx, &domain.Coupon{Code: normalizeCode(code)})
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, domain.ErrCouponNotFound
	}
	if !coupon.Active {
		return nil, domain.ErrCouponInactive
	}
	now := s.clock.Now()
	if coupon.ExpiresAt != nil && now.After(*coupon.ExpiresAt) {
		return nil, domain.ErrCouponExpired
	}
	if coupon.MaxUses > 0 && coupon.UsedCount >= coupon.MaxUses {
		return nil, domain.ErrCouponExhausted
	}
	if coupon.PerUserOnce {
		used, err := s.redemptions.Count(ctx, &domain.Redemption{CouponID: coupon.ID, UserID: userID})
		if err != nil {
			return nil, err
		}
		if used > 0 {
			return nil, domain.ErrCouponAlreadyUsed
		}
	}
	if subtotal < coupon.MinOrderValue {
		return nil, domain.ErrMinOrderNotMet
	}
	return coupon, nil
}

// Redeem increments used_count under the usage budget and appends the
// redemption row. Runs inside the caller's checkout transaction so a
// payment rollback also unwinds the burn.
func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, userID snowflake.ID, couponID snowflake.ID, orderRef string) error {
	res := tx.WithContext(ctx).Model(&domain.Coupon{}).
		Where("id = ? AND (max_uses = 0 OR used_count < max_uses)", couponID).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrCouponExhausted
	}

	redemption := &domain.Redemption{
		ID:        s.genID.Generate(),
		CouponID:  couponID,
		UserID:    userID,
		OrderRef:  strings.TrimSpace(orderRef),
		CreatedAt: s.clock.Now(),
	}
	return tx.WithContext(ctx).Create(redemption).Error
}
