// Package notification fans messages out to delivery channels. A
// failed delivery is logged and dropped; billing state never depends
// on a notification landing.
package notification

import "context"

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

const (
	TemplatePaymentConfirmation = "payment_confirmation"
	TemplateInvoiceIssued       = "invoice_issued"
	TemplateOverdueReminder     = "overdue_reminder"
)

type Message struct {
	Recipient string
	Channel   Channel
	Template  string
	Subject   string
	Payload   map[string]any
}

type Sink interface {
	Send(ctx context.Context, msg Message) error
}
