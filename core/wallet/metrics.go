package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	walletsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shule",
		Subsystem: "wallet",
		Name:      "created_total",
		Help:      "Number of wallets created.",
	})
	creditsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shule",
		Subsystem: "wallet",
		Name:      "credits_total",
		Help:      "Number of successful wallet credits.",
	})
	creditedAmount = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shule",
		Subsystem: "wallet",
		Name:      "credited_amount_total",
		Help:      "Sum of credited amounts, in minor units.",
	})
	debitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shule",
		Subsystem: "wallet",
		Name:      "debits_total",
		Help:      "Number of successful wallet debits.",
	})
	webhooksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shule",
		Subsystem: "wallet",
		Name:      "webhooks_rejected_total",
		Help:      "Number of bank notifications rejected.",
	})
	discrepanciesFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shule",
		Subsystem: "wallet",
		Name:      "discrepancies_total",
		Help:      "Number of discrepancies found by reconciliation, by kind.",
	}, []string{"kind"})
)
