package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/router-for-me/GymDesk/internal/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func sampleReceipt() Receipt {
	return Receipt{
		To:             "asha@example.com",
		Name:           "Asha <Rao>",
		Amount:         decimal.RequireFromString("1000.5"),
		Date:           time.Date(2024, time.July, 9, 0, 0, 0, 0, time.UTC),
		ReceiptID:      "INV-202407-0001",
		MembershipName: "Monthly",
		ValidFrom:      time.Date(2024, time.July, 9, 0, 0, 0, 0, time.UTC),
		ValidTo:        time.Date(2024, time.August, 8, 0, 0, 0, 0, time.UTC),
		SiteName:       "Muscle Unit",
	}
}

func TestRenderHTML(t *testing.T) {
	body, err := sampleReceipt().RenderHTML()
	require.NoError(t, err)

	assert.Contains(t, body, "INV-202407-0001")
	assert.Contains(t, body, "1000.50")
	assert.Contains(t, body, "09 Jul 2024")
	assert.Contains(t, body, "08 Aug 2024")
	assert.Contains(t, body, "Asha &lt;Rao&gt;")
	assert.NotContains(t, body, "<Rao>")
}

func TestSMTPNotifierBuildsMessage(t *testing.T) {
	n := NewSMTPNotifier(config.SMTPConfig{Host: "smtp.example.com", Port: 587, From: "desk@example.com"})
	var sent bytes.Buffer
	n.send = func(m *gomail.Message) error {
		_, errWrite := m.WriteTo(&sent)
		return errWrite
	}

	require.NoError(t, n.SendReceipt(context.Background(), sampleReceipt()))
	raw := sent.String()
	assert.Contains(t, raw, "To: asha@example.com")
	assert.Contains(t, raw, "Subject: Payment Receipt - Muscle Unit")
	assert.Contains(t, raw, "desk@example.com")

	noRecipient := sampleReceipt()
	noRecipient.To = " "
	assert.Error(t, n.SendReceipt(context.Background(), noRecipient))
}

type mockSender struct {
	mock.Mock
	done chan struct{}
}

func (m *mockSender) SendReceipt(ctx context.Context, receipt Receipt) error {
	args := m.Called(ctx, receipt)
	m.done <- struct{}{}
	return args.Error(0)
}

func TestDispatcherDeliversQueuedReceipts(t *testing.T) {
	sender := &mockSender{done: make(chan struct{}, 2)}
	sender.On("SendReceipt", mock.Anything, mock.MatchedBy(func(r Receipt) bool {
		return r.ReceiptID == "INV-202407-0001"
	})).Return(errors.New("smtp down")).Once()
	sender.On("SendReceipt", mock.Anything, mock.MatchedBy(func(r Receipt) bool {
		return r.ReceiptID == "INV-202407-0002"
	})).Return(nil).Once()

	d := NewDispatcher(sender, 4)
	d.ratePer = func() int { return 0 }
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	first := sampleReceipt()
	second := sampleReceipt()
	second.ReceiptID = "INV-202407-0002"
	require.NoError(t, d.SendReceipt(ctx, first))
	require.NoError(t, d.SendReceipt(ctx, second))

	for i := 0; i < 2; i++ {
		select {
		case <-sender.done:
		case <-time.After(5 * time.Second):
			t.Fatalf("receipt %d not delivered", i+1)
		}
	}
	cancel()
	d.Wait()
	sender.AssertExpectations(t)
}

func TestDispatcherQueueFull(t *testing.T) {
	d := NewDispatcher(LogNotifier{}, 1)
	require.NoError(t, d.SendReceipt(context.Background(), sampleReceipt()))
	assert.ErrorIs(t, d.SendReceipt(context.Background(), sampleReceipt()), ErrQueueFull)
}
