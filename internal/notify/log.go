package notify

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// LogNotifier logs receipts instead of mailing them. It is used when SMTP is
// not configured.
type LogNotifier struct{}

// SendReceipt implements Sender.
func (LogNotifier) SendReceipt(_ context.Context, receipt Receipt) error {
	log.WithFields(log.Fields{
		"to":         receipt.To,
		"receipt_id": receipt.ReceiptID,
		"amount":     receipt.Amount.StringFixed(2),
	}).Info("notify: smtp disabled, receipt not mailed")
	return nil
}
