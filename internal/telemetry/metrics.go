// Package telemetry exposes the service's Prometheus collectors.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OutboxSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealdesk_outbox_sent_total",
		Help: "Outbox messages delivered to the external channel.",
	})

	OutboxFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealdesk_outbox_failed_total",
		Help: "Outbox messages that failed to send (terminal, not retried).",
	})

	DealsAssigned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dealdesk_deals_assigned_total",
		Help: "Deals handed to a manager, by assignment mode.",
	}, []string{"mode"})

	InboundMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dealdesk_inbound_merged_total",
		Help: "Merged handler invocations produced by the inbound buffer.",
	})
)
