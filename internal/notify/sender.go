package notify

import (
	"fmt"
	"time"

	"github.com/guonaihong/gout"
	"gopkg.in/gomail.v2"

	"github.com/talkincode/nextshop/config"
	"github.com/talkincode/nextshop/internal/domain"
)

// Sender delivers one confirmation message. Implementations must be safe for
// concurrent use by the dispatcher worker pool. Name identifies the channel
// for the runtime enable switches.
type Sender interface {
	Name() string
	Send(n *domain.Notification) error
}

// MailSender delivers order confirmations over SMTP.
type MailSender struct {
	cfg config.NotifyConfig
}

func NewMailSender(cfg config.NotifyConfig) *MailSender {
	return &MailSender{cfg: cfg}
}

func (s *MailSender) Name() string {
	return "mail"
}

func (s *MailSender) Send(n *domain.Notification) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.MailFrom)
	m.SetHeader("To", n.Email)
	m.SetHeader("Subject", fmt.Sprintf("Order confirmation #%d", n.OrderID))
	m.SetBody("text/plain", fmt.Sprintf(
		"Hello!\n\nYour order #%d has been placed successfully.\n", n.OrderID))

	d := gomail.NewDialer(s.cfg.SmtpHost, s.cfg.SmtpPort, s.cfg.SmtpUser, s.cfg.SmtpPasswd)
	return d.DialAndSend(m)
}

// WebhookSender posts a JSON event to the configured endpoint so external
// systems (CRM, chat bots) can react to placed orders.
type WebhookSender struct {
	url string
}

func NewWebhookSender(url string) *WebhookSender {
	return &WebhookSender{url: url}
}

func (s *WebhookSender) Name() string {
	return "webhook"
}

func (s *WebhookSender) Send(n *domain.Notification) error {
	var code int
	err := gout.POST(s.url).
		SetTimeout(10 * time.Second).
		SetJSON(gout.H{
			"event":    "order.created",
			"order_id": n.OrderID,
			"email":    n.Email,
		}).
		Code(&code).
		Do()
	if err != nil {
		return err
	}
	if code >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", code)
	}
	return nil
}
