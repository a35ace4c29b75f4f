package notification

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/billfold/billfold/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var subjects = map[string]string{
	TemplatePaymentConfirmation: "Payment received",
	TemplateInvoiceIssued:       "New invoice issued",
	TemplateOverdueReminder:     "Invoice overdue",
}

type Params struct {
	fx.In

	Log   *zap.Logger
	Email email.Provider
}

// Notifier is the default Sink. Email renders an embedded template and
// goes out over SMTP; sms and push are accepted and logged until a
// carrier integration exists.
type Notifier struct {
	log       *zap.Logger
	email     email.Provider
	templates *template.Template
}

func NewNotifier(p Params) (Sink, error) {
	templates, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Notifier{
		log:       p.Log.Named("notification"),
		email:     p.Email,
		templates: templates,
	}, nil
}

func (n *Notifier) Send(ctx context.Context, msg Message) error {
	switch msg.Channel {
	case ChannelEmail:
		return n.sendEmail(ctx, msg)
	case ChannelSMS, ChannelPush:
		n.log.Info("channel not wired, dropping message",
			zap.String("channel", string(msg.Channel)),
			zap.String("template", msg.Template),
			zap.String("recipient", msg.Recipient),
		)
		return nil
	default:
		return fmt.Errorf("notification: unknown channel %q", msg.Channel)
	}
}

func (n *Notifier) sendEmail(ctx context.Context, msg Message) error {
	var body bytes.Buffer
	if err := n.templates.ExecuteTemplate(&body, msg.Template+".html", msg.Payload); err != nil {
		return fmt.Errorf("notification: render %s: %w", msg.Template, err)
	}
	subject := msg.Subject
	if subject == "" {
		subject = subjects[msg.Template]
	}
	return n.email.Send(ctx, []string{msg.Recipient}, subject, body.String())
}

// Dispatch sends best-effort: delivery failures are logged with the
// recipient and reason, never returned.
func Dispatch(ctx context.Context, sink Sink, log *zap.Logger, msg Message) {
	if sink == nil {
		return
	}
	if err := sink.Send(ctx, msg); err != nil {
		log.Warn("notification delivery failed",
			zap.String("recipient", msg.Recipient),
			zap.String("channel", string(msg.Channel)),
			zap.String("template", msg.Template),
			zap.Error(err),
		)
	}
}
