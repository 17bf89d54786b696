package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/router-for-me/GymDesk/internal/metrics"
	internalsettings "github.com/router-for-me/GymDesk/internal/settings"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrQueueFull is returned when the dispatcher cannot accept more receipts.
var ErrQueueFull = errors.New("notify: receipt queue full")

const (
	defaultQueueSize   = 256
	defaultSendTimeout = 30 * time.Second
)

// Dispatcher queues receipts and hands them to a Sender in the background at
// a rate read from the RECEIPT_RATE_PER_SECOND setting.
type Dispatcher struct {
	sender  Sender
	queue   chan Receipt
	limiter *rate.Limiter
	ratePer func() int

	wg sync.WaitGroup
}

// NewDispatcher constructs a Dispatcher around sender.
func NewDispatcher(sender Sender, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	ratePer := func() int {
		return internalsettings.IntValue(internalsettings.ReceiptRatePerSecondKey, internalsettings.DefaultReceiptRatePerSecond)
	}
	perSecond := ratePer()
	return &Dispatcher{
		sender:  sender,
		queue:   make(chan Receipt, queueSize),
		limiter: rate.NewLimiter(limitFor(perSecond), burstFor(perSecond)),
		ratePer: ratePer,
	}
}

func limitFor(perSecond int) rate.Limit {
	if perSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(perSecond)
}

func burstFor(perSecond int) int {
	if perSecond <= 0 {
		return 1
	}
	return perSecond
}

// SendReceipt queues a receipt without blocking.
func (d *Dispatcher) SendReceipt(_ context.Context, receipt Receipt) error {
	select {
	case d.queue <- receipt:
		return nil
	default:
		metrics.ReceiptsSent.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// Start delivers queued receipts until ctx is done.
func (d *Dispatcher) Start(ctx context.Context) {
	if d == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
}

// Wait blocks until the delivery loop has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case receipt := <-d.queue:
			perSecond := d.ratePer()
			d.limiter.SetLimit(limitFor(perSecond))
			d.limiter.SetBurst(burstFor(perSecond))
			if errWait := d.limiter.Wait(ctx); errWait != nil {
				return
			}
			d.deliver(ctx, receipt)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, receipt Receipt) {
	sendCtx, cancel := context.WithTimeout(ctx, defaultSendTimeout)
	defer cancel()
	if errSend := d.sender.SendReceipt(sendCtx, receipt); errSend != nil {
		metrics.ReceiptsSent.WithLabelValues("failed").Inc()
		log.WithError(errSend).WithField("receipt_id", receipt.ReceiptID).Warn("notify: receipt delivery failed")
		return
	}
	metrics.ReceiptsSent.WithLabelValues("sent").Inc()
}
