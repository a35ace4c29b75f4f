// Package paypal adapts PayPal-shaped payloads onto the generic
// gateway contract.
package paypal

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	paymentdomain "github.com/billfold/billfold/internal/payment/domain"
)

const signatureHeader = "Paypal-Transmission-Sig"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "paypal"
}

func (f *Factory) NewAdapter(cfg paymentdomain.AdapterConfig) (paymentdomain.PaymentAdapter, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Adapter{
		endpoint: strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		secret:   secret,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type Adapter struct {
	endpoint string
	secret   string
	client   *http.Client
}

func (a *Adapter) Provider() string {
	return "paypal"
}

type captureRequest struct {
	InvoiceReference string `json:"invoice_reference"`
	InvoiceID        string `json:"invoice_id"`
	CustomerID       string `json:"customer_id"`
	Amount           amount `json:"amount"`
}

type amount struct {
	ValueMinor int64  `json:"value_minor"`
	Currency   string `json:"currency_code"`
}

type captureResponse struct {
	Status  string `json:"status"`
	ID      string `json:"id"`
	Details string `json:"details"`
}

func (a *Adapter) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (*paymentdomain.ChargeResult, error) {
	if a.endpoint == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	body, err := json.Marshal(captureRequest{
		InvoiceReference: req.InvoiceNumber,
		InvoiceID:        req.InvoiceID.String(),
		CustomerID:       req.CustomerID.String(),
		Amount:           amount{ValueMinor: req.Amount, Currency: req.Currency},
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/v2/payments/captures", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(signatureHeader, a.sign(body))

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return &paymentdomain.ChargeResult{Status: paymentdomain.ChargePending}, nil
		}
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, paymentdomain.ErrGatewayUnavailable
	}

	var out captureResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, paymentdomain.ErrGatewayUnavailable
	}

	switch strings.ToUpper(strings.TrimSpace(out.Status)) {
	case "COMPLETED":
		return &paymentdomain.ChargeResult{
			Status:        paymentdomain.ChargeSucceeded,
			TransactionID: out.ID,
		}, nil
	case "PENDING":
		return &paymentdomain.ChargeResult{
			Status:        paymentdomain.ChargePending,
			TransactionID: out.ID,
		}, nil
	default:
		return &paymentdomain.ChargeResult{
			Status: paymentdomain.ChargeDeclined,
			Reason: out.Details,
		}, nil
	}
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	signature := strings.TrimSpace(headers.Get(signatureHeader))
	if signature == "" {
		return paymentdomain.ErrInvalidSignature
	}
	if !hmac.Equal([]byte(signature), []byte(a.sign(payload))) {
		return paymentdomain.ErrInvalidSignature
	}
	return nil
}

type paypalEvent struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	CreateTime string         `json:"create_time"`
	Resource   paypalResource `json:"resource"`
}

type paypalResource struct {
	ID        string `json:"id"`
	InvoiceID string `json:"invoice_id"`
	Amount    amount `json:"amount"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event paypalEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var eventType string
	switch strings.TrimSpace(event.EventType) {
	case "PAYMENT.CAPTURE.COMPLETED":
		eventType = paymentdomain.EventTypePaymentSucceeded
	case "PAYMENT.CAPTURE.DENIED":
		eventType = paymentdomain.EventTypePaymentFailed
	case "PAYMENT.CAPTURE.REFUNDED":
		eventType = paymentdomain.EventTypeRefunded
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	invoiceID, err := snowflake.ParseString(strings.TrimSpace(event.Resource.InvoiceID))
	if err != nil || invoiceID == 0 {
		return nil, paymentdomain.ErrInvalidEvent
	}

	occurredAt := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, event.CreateTime); err == nil {
		occurredAt = ts.UTC()
	}

	return &paymentdomain.PaymentEvent{
		Provider:        "paypal",
		ProviderEventID: event.ID,
		TransactionID:   strings.TrimSpace(event.Resource.ID),
		Type:            eventType,
		InvoiceID:       invoiceID,
		Amount:          event.Resource.Amount.ValueMinor,
		Currency:        strings.ToUpper(strings.TrimSpace(event.Resource.Amount.Currency)),
		OccurredAt:      occurredAt,
		RawPayload:      payload,
	}, nil
}

func (a *Adapter) sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(a.secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func isTimeout(err error) bool {
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) {
		return timeout.Timeout()
	}
	return false
}
