package assessment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokensIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shule",
		Subsystem: "assessment",
		Name:      "tokens_issued_total",
		Help:      "Number of assessment tokens issued.",
	})
	tokensRedeemed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shule",
		Subsystem: "assessment",
		Name:      "tokens_redeemed_total",
		Help:      "Number of assessment tokens redeemed.",
	})
	tokenCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "shule",
		Subsystem: "assessment",
		Name:      "token_collisions_total",
		Help:      "Number of generated token codes that were already taken.",
	})
)
