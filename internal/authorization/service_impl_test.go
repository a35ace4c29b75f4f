package authorization

import (
	"context"
	"errors"
	"fmt"
	"testing"

	authdomain "github.com/billfold/billfold/internal/auth/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) Service {
	t.Helper()

	dbConn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	enforcer, err := NewEnforcer(dbConn)
	if err != nil {
		t.Fatalf("failed to build enforcer: %v", err)
	}
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func principal(id int64, role authdomain.Role) authdomain.Principal {
	return authdomain.Principal{UserID: snowflake.ID(id), Role: role}
}

func TestRoleGrants(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	customer := principal(1, authdomain.RoleCustomer)
	staff := principal(2, authdomain.RoleStaff)
	admin := principal(3, authdomain.RoleAdmin)

	cases := []struct {
		name      string
		principal authdomain.Principal
		object    string
		action    string
		allowed   bool
	}{
		{"customer pays invoices", customer, ObjectInvoice, ActionInvoicePay, true},
		{"customer cannot manage invoices", customer, ObjectInvoice, ActionInvoiceManage, false},
		{"staff manages invoices", staff, ObjectInvoice, ActionInvoiceManage, true},
		{"staff cannot delete invoices", staff, ObjectInvoice, ActionInvoiceDelete, false},
		{"staff cannot refund payments", staff, ObjectPayment, ActionPaymentRefund, false},
		{"admin deletes invoices", admin, ObjectInvoice, ActionInvoiceDelete, true},
		{"admin refunds payments", admin, ObjectPayment, ActionPaymentRefund, true},
		{"admin reads audit log", admin, ObjectAuditLog, ActionView, true},
		{"staff cannot read audit log", staff, ObjectAuditLog, ActionView, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Authorize(ctx, tc.principal, tc.object, tc.action)
			if tc.allowed && err != nil {
				t.Fatalf("expected grant, got %v", err)
			}
			if !tc.allowed && !errors.Is(err, ErrForbidden) {
				t.Fatalf("expected ErrForbidden, got %v", err)
			}
		})
	}
}

func TestAuthorizeRejectsInvalidActor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	err := svc.Authorize(ctx, authdomain.Principal{}, ObjectInvoice, ActionView)
	if !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("expected ErrInvalidActor, got %v", err)
	}

	err = svc.Authorize(ctx, principal(1, authdomain.RoleCustomer), " ", ActionView)
	if !errors.Is(err, ErrInvalidObject) {
		t.Fatalf("expected ErrInvalidObject, got %v", err)
	}
}

func TestRoleChangeRebinds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// Same user first as staff, then demoted to customer.
	if err := svc.Authorize(ctx, principal(9, authdomain.RoleStaff), ObjectInvoice, ActionInvoiceManage); err != nil {
		t.Fatalf("staff manage should be granted: %v", err)
	}
	err := svc.Authorize(ctx, principal(9, authdomain.RoleCustomer), ObjectInvoice, ActionInvoiceManage)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("demoted user should lose manage, got %v", err)
	}
}
