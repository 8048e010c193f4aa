package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChecksOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checks_opened_total",
		Help: "Total number of checks opened by occupying a table",
	})

	ChecksClosedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checks_closed_total",
		Help: "Total number of checks closed",
	})

	TablesReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tables_released_total",
		Help: "Total number of tables returned to available",
	})

	OccupyConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "occupy_conflicts_total",
		Help: "Total number of rejected attempts to occupy an occupied table",
	})

	OrdersSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_submitted_total",
		Help: "Total number of orders merged into a check",
	}, []string{"source"})

	OrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Total number of rejected orders",
	}, []string{"reason"})

	OrderItemsCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_items_cancelled_total",
		Help: "Total number of cancelled order items",
	})

	TicketsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickets_created_total",
		Help: "Total number of kitchen tickets created",
	}, []string{"station"})

	TicketTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_item_transitions_total",
		Help: "Total number of ticket item status transitions",
	}, []string{"status"})

	InvalidTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticket_item_invalid_transitions_total",
		Help: "Total number of rejected ticket item transitions",
	}, []string{"from", "to"})

	TicketItemCookSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ticket_item_cook_seconds",
		Help:    "Time from COOKING to READY or SERVED",
		Buckets: []float64{30, 60, 120, 300, 600, 900, 1200, 1800},
	})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of payment confirmations that reached the gateway stage",
	})

	PaymentOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_outcomes_total",
		Help: "Payment confirmation outcomes",
	}, []string{"outcome"})

	PaymentReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_replays_total",
		Help: "Total number of confirmations answered from a stored result",
	})

	PaymentRefundsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_refunds_total",
		Help: "Total number of refunded payments",
	})

	BalanceDebitFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "balance_debit_failures_total",
		Help: "Settled payments whose points or coupons could not be redeemed",
	})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	RealtimeSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "realtime_subscribers",
		Help: "Number of live realtime subscriptions",
	}, []string{"store"})

	RealtimeDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_dropped_events_total",
		Help: "Total number of events not pushed to a slow subscriber",
	})

	RealtimeResyncsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_resyncs_total",
		Help: "Total number of snapshots pushed to recover a lagging subscriber",
	})

	ActivityDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "activity_dropped_total",
		Help: "Total number of activity events dropped because the queue was full",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
