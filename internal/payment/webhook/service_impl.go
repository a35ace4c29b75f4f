// Package webhook verifies and routes provider callbacks into the
// payment service.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/billfold/billfold/internal/config"
	"github.com/billfold/billfold/internal/payment/adapters"
	paymentdomain "github.com/billfold/billfold/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Billing    *config.BillingConfigHolder
	Adapters   *adapters.Registry
	PaymentSvc paymentdomain.Service
}

type Service struct {
	log        *zap.Logger
	cfg        config.Config
	billing    *config.BillingConfigHolder
	adapters   *adapters.Registry
	paymentSvc paymentdomain.Service
}

func NewService(p Params) paymentdomain.WebhookService {
	return &Service{
		log:        p.Log.Named("payment.webhook"),
		cfg:        p.Cfg,
		billing:    p.Billing,
		adapters:   p.Adapters,
		paymentSvc: p.PaymentSvc,
	}
}

func (s *Service) IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" || !s.adapters.ProviderExists(provider) {
		return paymentdomain.ErrProviderNotFound
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrInvalidPayload
	}

	adapter, err := s.adapterFor(provider)
	if err != nil {
		return err
	}
	if err := adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := adapter.Parse(ctx, payload)
	if err != nil {
		// Event types we do not act on are acknowledged and dropped.
		if errors.Is(err, paymentdomain.ErrEventIgnored) {
			s.log.Debug("ignoring webhook event", zap.String("provider", provider))
			return nil
		}
		return err
	}
	if event.RawPayload == nil {
		event.RawPayload = payload
	}

	if err := s.paymentSvc.ProcessEvent(ctx, event); err != nil {
		// Redelivery of a settled event is success to the provider.
		if errors.Is(err, paymentdomain.ErrEventAlreadyProcessed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Service) adapterFor(provider string) (paymentdomain.PaymentAdapter, error) {
	cfg := paymentdomain.AdapterConfig{Timeout: s.billing.Get().GatewayTimeout()}
	switch provider {
	case "card":
		cfg.Endpoint = s.cfg.GatewayCardEndpoint
		cfg.Secret = s.cfg.GatewayCardSecret
	case "paypal":
		cfg.Endpoint = s.cfg.GatewayPaypalEndpoint
		cfg.Secret = s.cfg.GatewayPaypalSecret
	}
	return s.adapters.NewAdapter(provider, cfg)
}
