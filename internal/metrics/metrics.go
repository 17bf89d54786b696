// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gymdesk"

var (
	// PaymentsCollected counts recorded payments by engine outcome
	// (created, renewed, topped_up, plan_changed, manual).
	PaymentsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payments_collected_total",
		Help:      "Payments recorded, by outcome.",
	}, []string{"outcome"})

	// PaymentAmount sums recorded payment amounts by method.
	PaymentAmount = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_amount_total",
		Help:      "Sum of recorded payment amounts, by method.",
	}, []string{"method"})

	// MembershipsExpired counts memberships moved to expired by the sweep.
	MembershipsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memberships_expired_total",
		Help:      "Memberships expired by the sweep.",
	})

	// OperationRetries counts retried engine operations.
	OperationRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_retries_total",
		Help:      "Engine operation retries after transient failures.",
	}, []string{"operation"})

	// OperationErrors counts failed engine operations by error kind.
	OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Engine operations that returned an error.",
	}, []string{"operation", "kind"})

	// OperationDuration observes engine operation latency.
	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Engine operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	// ReceiptsSent counts receipt deliveries by result (sent, failed, dropped).
	ReceiptsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "receipts_total",
		Help:      "Receipt deliveries, by result.",
	}, []string{"result"})

	// HTTPRequests counts API requests by route and status class.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests, by route and status.",
	}, []string{"method", "route", "status"})
)
