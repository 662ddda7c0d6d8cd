package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	eventsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calseed",
			Name:      "events_generated_total",
			Help:      "Count of assignment attempts by outcome.",
		},
		[]string{"outcome"},
	)

	cyclesRun = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calseed",
			Name:      "cycles_total",
			Help:      "Count of generation cycles by result.",
		},
		[]string{"result"},
	)

	orgQuotaRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "calseed",
			Name:      "org_quota_remaining",
			Help:      "Organization quota units remaining after the last cycle.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(eventsGenerated, cyclesRun, orgQuotaRemaining)
	})
}

func IncOutcome(outcome string) {
	eventsGenerated.WithLabelValues(outcome).Inc()
}

func IncCycle(result string) {
	cyclesRun.WithLabelValues(result).Inc()
}

func SetOrgQuotaRemaining(n int) {
	orgQuotaRemaining.Set(float64(n))
}
