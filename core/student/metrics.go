package student

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var admissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "shule",
	Subsystem: "student",
	Name:      "admissions_total",
	Help:      "Number of students admitted.",
})
