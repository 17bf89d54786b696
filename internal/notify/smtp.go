package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/router-for-me/GymDesk/internal/config"
	"gopkg.in/gomail.v2"
)

// SMTPNotifier sends receipts over SMTP.
type SMTPNotifier struct {
	cfg  config.SMTPConfig
	send func(m *gomail.Message) error
}

// NewSMTPNotifier constructs an SMTPNotifier.
func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	n := &SMTPNotifier{cfg: cfg}
	n.send = func(m *gomail.Message) error {
		d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
		return d.DialAndSend(m)
	}
	return n
}

// SendReceipt renders and mails a receipt.
func (n *SMTPNotifier) SendReceipt(ctx context.Context, receipt Receipt) error {
	to := strings.TrimSpace(receipt.To)
	if to == "" {
		return fmt.Errorf("notify: receipt %s has no recipient", receipt.ReceiptID)
	}
	if errCtx := ctx.Err(); errCtx != nil {
		return errCtx
	}
	body, errRender := receipt.RenderHTML()
	if errRender != nil {
		return errRender
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(n.cfg.From, receipt.SiteName))
	m.SetHeader("To", to)
	m.SetHeader("Subject", receipt.Subject())
	m.SetBody("text/html", body)

	if errSend := n.send(m); errSend != nil {
		return fmt.Errorf("notify: send receipt %s: %w", receipt.ReceiptID, errSend)
	}
	return nil
}
