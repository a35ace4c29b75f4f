package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/billfold/billfold/internal/clock"
	"github.com/billfold/billfold/internal/coupon/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, clk clock.Clock) (domain.Service, *gorm.DB) {
	t.Helper()

	dbConn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&domain.Coupon{}, &domain.Redemption{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	return NewService(Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	}), dbConn
}

func TestCreateNormalizesCode(t *testing.T) {
	svc, _ := newTestService(t, clock.NewSystem())

	coupon, err := svc.Create(context.Background(), domain.CreateCouponRequest{
		Code:  "  save10 ",
		Type:  domain.TypePercentage,
		Value: 10,
	})
	if err != nil {
		t.Fatalf("failed to create coupon: %v", err)
	}
	if coupon.Code != "SAVE10" {
		t.Fatalf("expected SAVE10, got %s", coupon.Code)
	}

	_, err = svc.Create(context.Background(), domain.CreateCouponRequest{
		Code:  "SAVE10",
		Type:  domain.TypeFixed,
		Value: 500,
	})
	if !errors.Is(err, domain.ErrCouponExists) {
		t.Fatalf("expected ErrCouponExists, got %v", err)
	}
}

func TestValidateMatrix(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc, dbConn := newTestService(t, clk)
	ctx := context.Background()
	userID := snowflake.ID(42)

	expired := clk.Now().Add(-time.Hour)
	coupons := []domain.CreateCouponRequest{
		{Code: "OK", Type: domain.TypePercentage, Value: 10},
		{Code: "EXPIRED", Type: domain.TypePercentage, Value: 10, ExpiresAt: &expired},
		{Code: "CAPPED", Type: domain.TypePercentage, Value: 10, MaxUses: 1},
		{Code: "BIGSPEND", Type: domain.TypeFixed, Value: 500, MinOrderValue: 10000},
		{Code: "ONCE", Type: domain.TypeFixed, Value: 500, PerUserOnce: true},
	}
	created := map[string]*domain.Coupon{}
	for _, req := range coupons {
		coupon, err := svc.Create(ctx, req)
		if err != nil {
			t.Fatalf("failed to create %s: %v", req.Code, err)
		}
		created[req.Code] = coupon
	}

	if _, err := svc.Validate(ctx, userID, "ok", 8000); err != nil {
		t.Fatalf("expected valid coupon, got %v", err)
	}
	if _, err := svc.Validate(ctx, userID, "MISSING", 8000); !errors.Is(err, domain.ErrCouponNotFound) {
		t.Fatalf("expected ErrCouponNotFound, got %v", err)
	}
	if _, err := svc.Validate(ctx, userID, "EXPIRED", 8000); !errors.Is(err, domain.ErrCouponExpired) {
		t.Fatalf("expected ErrCouponExpired, got %v", err)
	}
	if _, err := svc.Validate(ctx, userID, "BIGSPEND", 8000); !errors.Is(err, domain.ErrMinOrderNotMet) {
		t.Fatalf("expected ErrMinOrderNotMet, got %v", err)
	}

	inactive := false
	if _, err := svc.Update(ctx, created["OK"].ID, domain.UpdateCouponRequest{Active: &inactive}); err != nil {
		t.Fatalf("failed to deactivate: %v", err)
	}
	if _, err := svc.Validate(ctx, userID, "OK", 8000); !errors.Is(err, domain.ErrCouponInactive) {
		t.Fatalf("expected ErrCouponInactive, got %v", err)
	}

	// Burning the single use of CAPPED exhausts it.
	if err := svc.Redeem(ctx, dbConn, userID, created["CAPPED"].ID, "order-1"); err != nil {
		t.Fatalf("failed to redeem: %v", err)
	}
	if _, err := svc.Validate(ctx, userID, "CAPPED", 8000); !errors.Is(err, domain.ErrCouponExhausted) {
		t.Fatalf("expected ErrCouponExhausted, got %v", err)
	}

	// ONCE works for a new user but not for one with a redemption.
	if err := svc.Redeem(ctx, dbConn, userID, created["ONCE"].ID, "order-2"); err != nil {
		t.Fatalf("failed to redeem: %v", err)
	}
	if _, err := svc.Validate(ctx, userID, "ONCE", 8000); !errors.Is(err, domain.ErrCouponAlreadyUsed) {
		t.Fatalf("expected ErrCouponAlreadyUsed, got %v", err)
	}
	if _, err := svc.Validate(ctx, snowflake.ID(99), "ONCE", 8000); err != nil {
		t.Fatalf("expected ONCE valid for fresh user, got %v", err)
	}
}

func TestRedeemRespectsUsageBudget(t *testing.T) {
	svc, dbConn := newTestService(t, clock.NewSystem())
	ctx := context.Background()

	coupon, err := svc.Create(ctx, domain.CreateCouponRequest{
		Code:    "LIMITED",
		Type:    domain.TypeFixed,
		Value:   500,
		MaxUses: 2,
	})
	if err != nil {
		t.Fatalf("failed to create coupon: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := svc.Redeem(ctx, dbConn, snowflake.ID(int64(i+1)), coupon.ID, fmt.Sprintf("order-%d", i)); err != nil {
			t.Fatalf("redeem %d failed: %v", i, err)
		}
	}

	err = svc.Redeem(ctx, dbConn, snowflake.ID(3), coupon.ID, "order-overflow")
	if !errors.Is(err, domain.ErrCouponExhausted) {
		t.Fatalf("expected ErrCouponExhausted, got %v", err)
	}

	refreshed, err := svc.Get(ctx, coupon.ID)
	if err != nil {
		t.Fatalf("failed to reload: %v", err)
	}
	if refreshed.UsedCount != 2 {
		t.Fatalf("expected used_count 2, got %d", refreshed.UsedCount)
	}
}
