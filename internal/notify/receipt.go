// Package notify delivers payment receipts to members.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is the content of a payment receipt email.
type Receipt struct {
	To             string
	Name           string
	Amount         decimal.Decimal
	Date           time.Time
	ReceiptID      string // Invoice number.
	MembershipName string // Plan name.
	ValidFrom      time.Time
	ValidTo        time.Time
	SiteName       string
}

// Sender delivers a receipt.
type Sender interface {
	SendReceipt(ctx context.Context, receipt Receipt) error
}

const dateLayout = "02 Jan 2006"

var receiptTemplate = template.Must(template.New("receipt").Funcs(template.FuncMap{
	"date": func(t time.Time) string { return t.Format(dateLayout) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Payment Receipt</title></head>
<body style="font-family: 'Segoe UI', Tahoma, sans-serif; color: #333; background-color: #f8f9fa;">
  <div style="max-width: 600px; margin: 0 auto; background: #ffffff; border-radius: 12px; overflow: hidden;">
    <div style="background: #667eea; color: #ffffff; padding: 24px; text-align: center;">
      <h1 style="margin: 0; font-size: 26px;">{{.SiteName}}</h1>
    </div>
    <div style="padding: 32px 24px;">
      <p style="font-size: 20px; margin-top: 0;">Hi {{.Name}},</p>
      <p>Thank you for your payment. Here is your receipt.</p>
      <table style="width: 100%; border-collapse: collapse; margin: 24px 0;">
        <tr><td style="padding: 6px 0; color: #666;">Receipt ID</td><td style="text-align: right;">{{.ReceiptID}}</td></tr>
        <tr><td style="padding: 6px 0; color: #666;">Date</td><td style="text-align: right;">{{date .Date}}</td></tr>
        <tr><td style="padding: 6px 0; color: #666;">Membership</td><td style="text-align: right;">{{.MembershipName}}</td></tr>
        <tr><td style="padding: 6px 0; color: #666;">Valid from</td><td style="text-align: right;">{{date .ValidFrom}}</td></tr>
        <tr><td style="padding: 6px 0; color: #666;">Valid to</td><td style="text-align: right;">{{date .ValidTo}}</td></tr>
        <tr><td style="padding: 12px 0; font-weight: bold; border-top: 1px solid #eee;">Amount paid</td><td style="padding: 12px 0; text-align: right; font-weight: bold; border-top: 1px solid #eee;">{{.Amount.StringFixed 2}}</td></tr>
      </table>
      <p style="color: #666;">See you at the gym!</p>
    </div>
  </div>
</body>
</html>
`))

// Subject returns the email subject line.
func (r Receipt) Subject() string {
	return fmt.Sprintf("Payment Receipt - %s", r.SiteName)
}

// RenderHTML renders the receipt body.
func (r Receipt) RenderHTML() (string, error) {
	var buf bytes.Buffer
	if errExec := receiptTemplate.Execute(&buf, r); errExec != nil {
		return "", fmt.Errorf("notify: render receipt: %w", errExec)
	}
	return buf.String(), nil
}
