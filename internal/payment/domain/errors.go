package domain

import "errors"

var (
	ErrPaymentNotFound       = errors.New("payment_not_found")
	ErrInvalidMethod         = errors.New("invalid_payment_method")
	ErrInvalidAmount         = errors.New("invalid_payment_amount")
	ErrAmountMismatch        = errors.New("payment_amount_mismatch")
	ErrInvoiceNotPayable     = errors.New("invoice_not_payable")
	ErrNotInvoiceOwner       = errors.New("not_invoice_owner")
	ErrPaymentDeclined       = errors.New("payment_declined")
	ErrGatewayUnavailable    = errors.New("gateway_unavailable")
	ErrPendingVerification   = errors.New("payment_pending_verification")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_adapter_config")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrNotRefundable         = errors.New("payment_not_refundable")
)
