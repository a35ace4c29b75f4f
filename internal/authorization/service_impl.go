// Package authorization gates every protected operation behind a
// casbin role model. Policies are seeded at startup and persisted
// through the gorm adapter so runtime grants survive restarts.
package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	authdomain "github.com/billfold/billfold/internal/auth/domain"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectService  = "service"
	ObjectCart     = "cart"
	ObjectCheckout = "checkout"
	ObjectOrder    = "order"
	ObjectInvoice  = "invoice"
	ObjectPayment  = "payment"
	ObjectWallet   = "wallet"
	ObjectTicket   = "ticket"
	ObjectCoupon   = "coupon"
	ObjectUser     = "user"
	ObjectAuditLog = "audit_log"
)

const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"

	ActionCartManage    = "cart.manage"
	ActionCheckoutPlace = "checkout.place"
	ActionOrderCancel   = "order.cancel"
	ActionInvoicePay    = "invoice.pay"
	ActionInvoiceManage = "invoice.manage"
	ActionInvoiceDelete = "invoice.delete"
	ActionPaymentRefund = "payment.refund"
	ActionWalletDeposit = "wallet.deposit"
	ActionTicketReply   = "ticket.reply"
	ActionTicketTriage  = "ticket.triage"
	ActionCouponRedeem  = "coupon.redeem"
	ActionUserManage    = "user.manage"
)

type Service interface {
	// Authorize checks whether the principal's role grants the action
	// on the object. It returns ErrForbidden on denial.
	Authorize(ctx context.Context, principal authdomain.Principal, object string, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, principal authdomain.Principal, object string, action string) error {
	if principal.UserID == 0 || !principal.Role.Valid() {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject := fmt.Sprintf("user:%s", principal.UserID.String())
	roleName := fmt.Sprintf("role:%s", principal.Role)
	if err := s.ensureGrouping(subject, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("subject", subject),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

// ensureGrouping keeps the subject bound to exactly one role group so
// a role change on the user row takes effect on the next request.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 || rule[1] == roleName {
			continue
		}
		params := make([]interface{}, 0, len(rule))
		for _, value := range rule {
			params = append(params, value)
		}
		_, _ = s.enforcer.RemoveGroupingPolicy(params...)
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	customer := [][]string{
		{ObjectService, ActionView},
		{ObjectCart, ActionView},
		{ObjectCart, ActionCartManage},
		{ObjectCheckout, ActionCheckoutPlace},
		{ObjectOrder, ActionView},
		{ObjectOrder, ActionOrderCancel},
		{ObjectInvoice, ActionView},
		{ObjectInvoice, ActionInvoicePay},
		{ObjectPayment, ActionView},
		{ObjectWallet, ActionView},
		{ObjectWallet, ActionWalletDeposit},
		{ObjectTicket, ActionView},
		{ObjectTicket, ActionCreate},
		{ObjectTicket, ActionTicketReply},
		{ObjectCoupon, ActionCouponRedeem},
		{ObjectUser, ActionView},
		{ObjectUser, ActionUpdate},
	}

	staff := [][]string{
		{ObjectService, ActionView},
		{ObjectService, ActionCreate},
		{ObjectService, ActionUpdate},
		{ObjectService, ActionDelete},
		{ObjectOrder, ActionView},
		{ObjectOrder, ActionUpdate},
		{ObjectInvoice, ActionView},
		{ObjectInvoice, ActionInvoiceManage},
		{ObjectPayment, ActionView},
		{ObjectTicket, ActionView},
		{ObjectTicket, ActionTicketReply},
		{ObjectTicket, ActionTicketTriage},
		{ObjectCoupon, ActionView},
		{ObjectCoupon, ActionCreate},
		{ObjectCoupon, ActionUpdate},
		{ObjectUser, ActionView},
		{ObjectUser, ActionUpdate},
	}

	adminOnly := [][]string{
		{ObjectInvoice, ActionInvoiceDelete},
		{ObjectPayment, ActionPaymentRefund},
		{ObjectCoupon, ActionDelete},
		{ObjectUser, ActionUserManage},
		{ObjectWallet, ActionUpdate},
		{ObjectAuditLog, ActionView},
	}

	policies := make([][]string, 0, 3*len(customer))
	for _, rule := range customer {
		policies = append(policies,
			[]string{"role:customer", rule[0], rule[1]},
			[]string{"role:business", rule[0], rule[1]},
		)
	}
	for _, rule := range staff {
		policies = append(policies,
			[]string{"role:staff", rule[0], rule[1]},
			[]string{"role:admin", rule[0], rule[1]},
		)
	}
	// Admins also hold every self-service capability plus the
	// admin-only grants.
	for _, rule := range customer {
		policies = append(policies, []string{"role:admin", rule[0], rule[1]})
	}
	for _, rule := range adminOnly {
		policies = append(policies, []string{"role:admin", rule[0], rule[1]})
	}

	for _, rule := range policies {
		has, err := enforcer.HasPolicy(rule[0], rule[1], rule[2])
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
			return err
		}
	}
	return nil
}
