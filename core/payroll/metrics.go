package payroll

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shule",
		Subsystem: "payroll",
		Name:      "runs_generated_total",
		Help:      "Number of payroll runs generated.",
	})
	runsPaid = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shule",
		Subsystem: "payroll",
		Name:      "runs_paid_total",
		Help:      "Number of payroll runs paid.",
	})
	netPaid = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shule",
		Subsystem: "payroll",
		Name:      "net_paid_total",
		Help:      "Sum of net salaries paid, in minor units.",
	})
)
