// Package card speaks the generic HTTP contract of the card gateway.
package card

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

const signatureHeader = "X-Card-Signature"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "card"
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
	return "card"
}

type chargeRequest struct {
	Reference  string `json:"reference"`
	InvoiceID  string `json:"invoice_id"`
	CustomerID string `json:"customer_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

type chargeResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

func (a *Adapter) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (*paymentdomain.ChargeResult, error) {
	if a.endpoint == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}

	body, err := json.Marshal(chargeRequest{
		Reference:  req.InvoiceNumber,
		InvoiceID:  req.InvoiceID.String(),
		CustomerID: req.CustomerID.String(),
		Amount:     req.Amount,
		Currency:   req.Currency,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint+"/charges", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(signatureHeader, a.sign(body))

	resp, err := a.client.Do(httpReq)
	if err != nil {
		// No answer in time means no verdict either way; the webhook
		// delivers the real outcome.
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return &paymentdomain.ChargeResult{Status: paymentdomain.ChargePending}, nil
		}
		return nil, paymentdomain.ErrGatewayUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, paymentdomain.ErrGatewayUnavailable
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, paymentdomain.ErrGatewayUnavailable
	}

	switch strings.ToLower(strings.TrimSpace(out.Status)) {
	case "succeeded":
		return &paymentdomain.ChargeResult{
			Status:        paymentdomain.ChargeSucceeded,
			TransactionID: out.TransactionID,
		}, nil
	case "pending":
		return &paymentdomain.ChargeResult{
			Status:        paymentdomain.ChargePending,
			TransactionID: out.TransactionID,
		}, nil
	default:
		return &paymentdomain.ChargeResult{
			Status: paymentdomain.ChargeDeclined,
			Reason: out.Reason,
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

type cardEvent struct {
	ID      string        `json:"id"`
	Type    string        `json:"type"`
	Created int64         `json:"created"`
	Data    cardEventData `json:"data"`
}

type cardEventData struct {
	TransactionID string `json:"transaction_id"`
	InvoiceID     string `json:"invoice_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.PaymentEvent, error) {
	var event cardEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	var eventType string
	switch strings.TrimSpace(event.Type) {
	case "charge.succeeded":
		eventType = paymentdomain.EventTypePaymentSucceeded
	case "charge.failed":
		eventType = paymentdomain.EventTypePaymentFailed
	case "charge.refunded":
		eventType = paymentdomain.EventTypeRefunded
	default:
		return nil, paymentdomain.ErrEventIgnored
	}

	invoiceID, err := snowflake.ParseString(strings.TrimSpace(event.Data.InvoiceID))
	if err != nil || invoiceID == 0 {
		return nil, paymentdomain.ErrInvalidEvent
	}

	occurredAt := time.Now().UTC()
	if event.Created > 0 {
		occurredAt = time.Unix(event.Created, 0).UTC()
	}

	return &paymentdomain.PaymentEvent{
		Provider:        "card",
		ProviderEventID: event.ID,
		TransactionID:   strings.TrimSpace(event.Data.TransactionID),
		Type:            eventType,
		InvoiceID:       invoiceID,
		Amount:          event.Data.Amount,
		Currency:        strings.ToUpper(strings.TrimSpace(event.Data.Currency)),
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
