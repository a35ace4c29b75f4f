// Package server wires the HTTP surface: route registration, session
// auth, role checks and the error envelope.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/billfold/billfold/internal/audit"
	auditdomain "github.com/billfold/billfold/internal/audit/domain"
	"github.com/billfold/billfold/internal/auth"
	authdomain "github.com/billfold/billfold/internal/auth/domain"
	"github.com/billfold/billfold/internal/authorization"
	"github.com/billfold/billfold/internal/cart"
	cartdomain "github.com/billfold/billfold/internal/cart/domain"
	"github.com/billfold/billfold/internal/catalog"
	catalogdomain "github.com/billfold/billfold/internal/catalog/domain"
	"github.com/billfold/billfold/internal/config"
	"github.com/billfold/billfold/internal/coupon"
	coupondomain "github.com/billfold/billfold/internal/coupon/domain"
	"github.com/billfold/billfold/internal/invoice"
	invoicedomain "github.com/billfold/billfold/internal/invoice/domain"
	"github.com/billfold/billfold/internal/notification"
	"github.com/billfold/billfold/internal/observability"
	obslogger "github.com/billfold/billfold/internal/observability/logger"
	obsmetrics "github.com/billfold/billfold/internal/observability/metrics"
	obstracing "github.com/billfold/billfold/internal/observability/tracing"
	"github.com/billfold/billfold/internal/order"
	orderdomain "github.com/billfold/billfold/internal/order/domain"
	"github.com/billfold/billfold/internal/payment"
	paymentdomain "github.com/billfold/billfold/internal/payment/domain"
	"github.com/billfold/billfold/internal/providers/email"
	"github.com/billfold/billfold/internal/providers/pdf"
	"github.com/billfold/billfold/internal/ticket"
	ticketdomain "github.com/billfold/billfold/internal/ticket/domain"
	"github.com/billfold/billfold/internal/wallet"
	walletdomain "github.com/billfold/billfold/internal/wallet/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	authorization.Module,
	audit.Module,
	auth.Module,
	catalog.Module,
	cart.Module,
	coupon.Module,
	email.Module,
	pdf.Module,
	notification.Module,
	invoice.Module,
	payment.Module,
	order.Module,
	wallet.Module,
	ticket.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	genID      *snowflake.Node
	authSvc    authdomain.Service
	authzSvc   authorization.Service
	auditSvc   auditdomain.Service
	catalogSvc catalogdomain.Catalog
	cartSvc    cartdomain.Service
	couponSvc  coupondomain.Service
	invoiceSvc invoicedomain.Service
	paymentSvc paymentdomain.Service
	webhookSvc paymentdomain.WebhookService
	orderSvc   orderdomain.Service
	walletSvc  walletdomain.Service
	ticketSvc  ticketdomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	GenID      *snowflake.Node
	AuthSvc    authdomain.Service
	AuthzSvc   authorization.Service
	AuditSvc   auditdomain.Service
	CatalogSvc catalogdomain.Catalog
	CartSvc    cartdomain.Service
	CouponSvc  coupondomain.Service
	InvoiceSvc invoicedomain.Service
	PaymentSvc paymentdomain.Service
	WebhookSvc paymentdomain.WebhookService
	OrderSvc   orderdomain.Service
	WalletSvc  walletdomain.Service
	TicketSvc  ticketdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		genID:      p.GenID,
		authSvc:    p.AuthSvc,
		authzSvc:   p.AuthzSvc,
		auditSvc:   p.AuditSvc,
		catalogSvc: p.CatalogSvc,
		cartSvc:    p.CartSvc,
		couponSvc:  p.CouponSvc,
		invoiceSvc: p.InvoiceSvc,
		paymentSvc: p.PaymentSvc,
		webhookSvc: p.WebhookSvc,
		orderSvc:   p.OrderSvc,
		walletSvc:  p.WalletSvc,
		ticketSvc:  p.TicketSvc,
	}
}

func registerRoutes(s *Server) {
	s.registerAuthRoutes()
	s.registerAPIRoutes()
	s.registerWebhookRoutes()
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.POST("/register", s.RegisterUser)
	auth.POST("/login", s.Login)
	auth.POST("/logout", s.AuthRequired(), s.Logout)
	auth.GET("/me", s.AuthRequired(), s.Me)
	auth.PUT("/me", s.AuthRequired(), s.UpdateProfile)
	auth.POST("/change-password", s.AuthRequired(), s.ChangePassword)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Catalog --------
	api.GET("/services", s.authorize(authorization.ObjectService, authorization.ActionView), s.ListServices)
	api.GET("/services/:id", s.authorize(authorization.ObjectService, authorization.ActionView), s.GetServiceByID)
	api.POST("/services", s.authorize(authorization.ObjectService, authorization.ActionCreate), s.CreateService)
	api.PUT("/services/:id", s.authorize(authorization.ObjectService, authorization.ActionUpdate), s.UpdateService)
	api.DELETE("/services/:id", s.authorize(authorization.ObjectService, authorization.ActionDelete), s.DeleteService)

	// -------- Cart --------
	api.GET("/cart", s.authorize(authorization.ObjectCart, authorization.ActionCartManage), s.GetCart)
	api.POST("/cart/items", s.authorize(authorization.ObjectCart, authorization.ActionCartManage), s.AddCartItem)
	api.PUT("/cart/items/:id", s.authorize(authorization.ObjectCart, authorization.ActionCartManage), s.UpdateCartItem)
	api.DELETE("/cart/items/:id", s.authorize(authorization.ObjectCart, authorization.ActionCartManage), s.RemoveCartItem)
	api.POST("/cart/coupon", s.authorize(authorization.ObjectCoupon, authorization.ActionCouponRedeem), s.ApplyCoupon)
	api.DELETE("/cart/coupon", s.authorize(authorization.ObjectCoupon, authorization.ActionCouponRedeem), s.RemoveCoupon)

	// -------- Checkout / Orders --------
	api.POST("/checkout", s.authorize(authorization.ObjectCheckout, authorization.ActionCheckoutPlace), s.Checkout)
	api.GET("/orders", s.authorize(authorization.ObjectOrder, authorization.ActionView), s.ListOrders)
	api.GET("/orders/:id", s.authorize(authorization.ObjectOrder, authorization.ActionView), s.GetOrderByID)
	api.POST("/orders/:id/cancel", s.authorize(authorization.ObjectOrder, authorization.ActionOrderCancel), s.CancelOrder)
	api.PUT("/orders/:id/status", s.authorize(authorization.ObjectOrder, authorization.ActionUpdate), s.UpdateOrderStatus)

	// -------- Invoices --------
	api.GET("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionView), s.ListInvoices)
	api.GET("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionView), s.GetInvoiceByID)
	api.GET("/invoices/:id/pdf", s.authorize(authorization.ObjectInvoice, authorization.ActionView), s.DownloadInvoicePDF)
	api.POST("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceManage), s.CreateInvoice)
	api.PUT("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceManage), s.UpdateInvoice)
	api.PUT("/invoices/:id/status", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceManage), s.UpdateInvoiceStatus)
	api.DELETE("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceDelete), s.DeleteInvoice)
	api.POST("/invoices/:id/pay", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoicePay), s.PayInvoice)

	// -------- Payments --------
	api.GET("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionView), s.ListPayments)
	api.GET("/payments/:id", s.authorize(authorization.ObjectPayment, authorization.ActionView), s.GetPaymentByID)
	api.POST("/payments/:id/refund", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentRefund), s.RefundPayment)

	// -------- Wallet --------
	api.GET("/wallet", s.authorize(authorization.ObjectWallet, authorization.ActionView), s.GetWallet)
	api.POST("/wallet/deposit", s.authorize(authorization.ObjectWallet, authorization.ActionWalletDeposit), s.DepositWallet)
	api.GET("/wallet/transactions", s.authorize(authorization.ObjectWallet, authorization.ActionView), s.ListWalletTransactions)

	// -------- Tickets --------
	api.GET("/tickets", s.authorize(authorization.ObjectTicket, authorization.ActionView), s.ListTickets)
	api.GET("/tickets/:id", s.authorize(authorization.ObjectTicket, authorization.ActionView), s.GetTicketByID)
	api.POST("/tickets", s.authorize(authorization.ObjectTicket, authorization.ActionCreate), s.CreateTicket)
	api.POST("/tickets/:id/replies", s.authorize(authorization.ObjectTicket, authorization.ActionTicketReply), s.ReplyTicket)
	api.PUT("/tickets/:id/status", s.authorize(authorization.ObjectTicket, authorization.ActionTicketTriage), s.UpdateTicketStatus)

	// -------- Coupons (back office) --------
	api.GET("/coupons", s.authorize(authorization.ObjectCoupon, authorization.ActionView), s.ListCoupons)
	api.GET("/coupons/:id", s.authorize(authorization.ObjectCoupon, authorization.ActionView), s.GetCouponByID)
	api.POST("/coupons", s.authorize(authorization.ObjectCoupon, authorization.ActionCreate), s.CreateCoupon)
	api.PUT("/coupons/:id", s.authorize(authorization.ObjectCoupon, authorization.ActionUpdate), s.UpdateCoupon)
	api.DELETE("/coupons/:id", s.authorize(authorization.ObjectCoupon, authorization.ActionDelete), s.DeleteCoupon)

	// -------- Users / Audit (back office) --------
	api.GET("/users/:id", s.authorize(authorization.ObjectUser, authorization.ActionUserManage), s.GetUserByID)
	api.PUT("/users/:id/status", s.authorize(authorization.ObjectUser, authorization.ActionUserManage), s.SetUserStatus)
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionView), s.ListAuditLogs)
}

// Webhooks are authenticated by gateway signature, not by session.
func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/payments/:provider", s.IngestPaymentWebhook)
}
