package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	cartdomain "github.com/billfold/billfold/internal/cart/domain"
	catalogdomain "github.com/billfold/billfold/internal/catalog/domain"
	catalogservice "github.com/billfold/billfold/internal/catalog/service"
	"github.com/billfold/billfold/internal/clock"
	coupondomain "github.com/billfold/billfold/internal/coupon/domain"
	couponservice "github.com/billfold/billfold/internal/coupon/service"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	svc     cartdomain.Service
	catalog catalogdomain.Catalog
	coupons coupondomain.Service
	db      *gorm.DB
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dbConn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	err = dbConn.AutoMigrate(
		&catalogdomain.Service{},
		&cartdomain.Item{},
		&cartdomain.AppliedCoupon{},
		&coupondomain.Coupon{},
		&coupondomain.Redemption{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	catalog := catalogservice.NewCatalog(catalogservice.Params{DB: dbConn, Log: log, GenID: node})
	coupons := couponservice.NewService(couponservice.Params{DB: dbConn, Log: log, GenID: node, Clock: clk})
	svc := NewService(Params{DB: dbConn, Log: log, GenID: node, Catalog: catalog, Coupons: coupons})

	return &testEnv{svc: svc, catalog: catalog, coupons: coupons, db: dbConn}
}

func (e *testEnv) seedService(t *testing.T, name string, price int64, cycle catalogdomain.BillingCycle) *catalogdomain.Service {
	t.Helper()
	svc, err := e.catalog.Create(context.Background(), catalogdomain.CreateServiceRequest{
		Name:         name,
		Price:        price,
		Recurring:    true,
		BillingCycle: cycle,
	})
	if err != nil {
		t.Fatalf("failed to seed service: %v", err)
	}
	return svc
}

func TestAddItemSnapshotsPrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := snowflake.ID(7)

	hosting := env.seedService(t, "Web Hosting", 4000, catalogdomain.CycleMonthly)
	item, err := env.svc.AddItem(ctx, user, hosting.ID, 1)
	if err != nil {
		t.Fatalf("failed to add item: %v", err)
	}
	if item.UnitPrice != 4000 || item.ServiceName != "Web Hosting" {
		t.Fatalf("unexpected item: %+v", item)
	}

	// A later catalog price change does not reprice the cart.
	newPrice := int64(9000)
	if _, err := env.catalog.Update(ctx, hosting.ID, catalogdomain.UpdateServiceRequest{Price: &newPrice}); err != nil {
		t.Fatalf("failed to update service: %v", err)
	}
	cart, err := env.svc.Get(ctx, user)
	if err != nil {
		t.Fatalf("failed to fetch cart: %v", err)
	}
	if cart.Subtotal != 4000 {
		t.Fatalf("expected subtotal 4000, got %d", cart.Subtotal)
	}
}

func TestAddItemBumpsQuantity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := snowflake.ID(7)

	hosting := env.seedService(t, "Web Hosting", 4000, catalogdomain.CycleMonthly)
	if _, err := env.svc.AddItem(ctx, user, hosting.ID, 1); err != nil {
		t.Fatalf("failed to add item: %v", err)
	}
	item, err := env.svc.AddItem(ctx, user, hosting.ID, 2)
	if err != nil {
		t.Fatalf("failed to re-add item: %v", err)
	}
	if item.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %d", item.Quantity)
	}

	cart, err := env.svc.Get(ctx, user)
	if err != nil {
		t.Fatalf("failed to fetch cart: %v", err)
	}
	if len(cart.Items) != 1 || cart.Subtotal != 12000 {
		t.Fatalf("unexpected cart: items=%d subtotal=%d", len(cart.Items), cart.Subtotal)
	}
}

func TestAddItemRejectsInactiveService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hosting := env.seedService(t, "Web Hosting", 4000, catalogdomain.CycleMonthly)
	inactive := false
	if _, err := env.catalog.Update(ctx, hosting.ID, catalogdomain.UpdateServiceRequest{Active: &inactive}); err != nil {
		t.Fatalf("failed to deactivate service: %v", err)
	}

	_, err := env.svc.AddItem(ctx, snowflake.ID(7), hosting.ID, 1)
	if !errors.Is(err, catalogdomain.ErrServiceInactive) {
		t.Fatalf("expected ErrServiceInactive, got %v", err)
	}
}

func TestItemOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hosting := env.seedService(t, "Web Hosting", 4000, catalogdomain.CycleMonthly)
	item, err := env.svc.AddItem(ctx, snowflake.ID(7), hosting.ID, 1)
	if err != nil {
		t.Fatalf("failed to add item: %v", err)
	}

	if _, err := env.svc.UpdateItem(ctx, snowflake.ID(8), item.ID, 2); !errors.Is(err, cartdomain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if err := env.svc.RemoveItem(ctx, snowflake.ID(8), item.ID); !errors.Is(err, cartdomain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if err := env.svc.RemoveItem(ctx, snowflake.ID(7), item.ID); err != nil {
		t.Fatalf("failed to remove item: %v", err)
	}
}

func TestApplyCoupon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := snowflake.ID(7)

	hosting := env.seedService(t, "Web Hosting", 4000, catalogdomain.CycleMonthly)
	if _, err := env.svc.AddItem(ctx, user, hosting.ID, 2); err != nil {
		t.Fatalf("failed to add item: %v", err)
	}
	if _, err := env.coupons.Create(ctx, coupondomain.CreateCouponRequest{
		Code:  "SAVE10",
		Type:  coupondomain.TypePercentage,
		Value: 10,
	}); err != nil {
		t.Fatalf("failed to create coupon: %v", err)
	}

	cart, err := env.svc.ApplyCoupon(ctx, user, "save10")
	if err != nil {
		t.Fatalf("failed to apply coupon: %v", err)
	}
	if cart.Discount != 800 {
		t.Fatalf("expected discount 800, got %d", cart.Discount)
	}

	if err := env.svc.RemoveCoupon(ctx, user); err != nil {
		t.Fatalf("failed to remove coupon: %v", err)
	}
	cart, err = env.svc.Get(ctx, user)
	if err != nil {
		t.Fatalf("failed to fetch cart: %v", err)
	}
	if cart.Coupon != nil || cart.Discount != 0 {
		t.Fatalf("expected coupon cleared, got %+v", cart)
	}
}

func TestApplyCouponEmptyCart(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.ApplyCoupon(context.Background(), snowflake.ID(7), "SAVE10")
	if !errors.Is(err, cartdomain.ErrCartEmpty) {
		t.Fatalf("expected ErrCartEmpty, got %v", err)
	}
}

func TestClearTx(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := snowflake.ID(7)

	hosting := env.seedService(t, "Web Hosting", 4000, catalogdomain.CycleMonthly)
	if _, err := env.svc.AddItem(ctx, user, hosting.ID, 1); err != nil {
		t.Fatalf("failed to add item: %v", err)
	}
	if _, err := env.coupons.Create(ctx, coupondomain.CreateCouponRequest{
		Code:  "SAVE10",
		Type:  coupondomain.TypePercentage,
		Value: 10,
	}); err != nil {
		t.Fatalf("failed to create coupon: %v", err)
	}
	if _, err := env.svc.ApplyCoupon(ctx, user, "SAVE10"); err != nil {
		t.Fatalf("failed to apply coupon: %v", err)
	}

	err := env.db.Transaction(func(tx *gorm.DB) error {
		return env.svc.ClearTx(ctx, tx, user)
	})
	if err != nil {
		t.Fatalf("failed to clear cart: %v", err)
	}

	cart, err := env.svc.Get(ctx, user)
	if err != nil {
		t.Fatalf("failed to fetch cart: %v", err)
	}
	if len(cart.Items) != 0 || cart.Coupon != nil {
		t.Fatalf("expected empty cart, got %+v", cart)
	}
}
