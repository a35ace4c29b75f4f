package migration

import (
	auditdomain "github.com/billfold/billfold/internal/audit/domain"
	authdomain "github.com/billfold/billfold/internal/auth/domain"
	cartdomain "github.com/billfold/billfold/internal/cart/domain"
	catalogdomain "github.com/billfold/billfold/internal/catalog/domain"
	"github.com/billfold/billfold/internal/config"
	coupondomain "github.com/billfold/billfold/internal/coupon/domain"
	invoicedomain "github.com/billfold/billfold/internal/invoice/domain"
	orderdomain "github.com/billfold/billfold/internal/order/domain"
	paymentdomain "github.com/billfold/billfold/internal/payment/domain"
	"github.com/billfold/billfold/internal/seed"
	ticketdomain "github.com/billfold/billfold/internal/ticket/domain"
	walletdomain "github.com/billfold/billfold/internal/wallet/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql deployments rely on gorm's schema sync.
			if err := autoMigrate(conn); err != nil {
				return err
			}
		}

		return seed.EnsureAdmin(conn, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword)
	}),
)

func autoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&authdomain.User{},
		&authdomain.Session{},
		&catalogdomain.Service{},
		&cartdomain.Item{},
		&cartdomain.AppliedCoupon{},
		&coupondomain.Coupon{},
		&coupondomain.Redemption{},
		&orderdomain.Order{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&paymentdomain.Payment{},
		&paymentdomain.EventRecord{},
		&walletdomain.Wallet{},
		&walletdomain.Transaction{},
		&ticketdomain.Ticket{},
		&ticketdomain.Reply{},
		&auditdomain.AuditLog{},
	)
}
