package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// recordsPerCostUnit is the page size one cost unit pays for.
const recordsPerCostUnit = 100

var (
	rangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_ranges_total",
		Help: "Total ranges processed by outcome (split, collected, forced, skipped)",
	}, []string{"outcome"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crawler_queue_depth",
		Help: "Number of ranges waiting in the exploration queue",
	})

	collectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_records_collected_total",
		Help: "Total records collected and committed",
	})

	costUnitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_cost_units_total",
		Help: "Total cost units spent collecting",
	})
)

// RunMetrics accumulates the counters of one run. It is passed into and
// returned from every scheduler step.
type RunMetrics struct {
	Collected      int `json:"collected"`
	TotalCalls     int `json:"totalCalls"`
	TotalCostUnits int `json:"totalCostUnits"`
	// LastKnownRemaining is -1 until a rate-limit snapshot was seen.
	LastKnownRemaining int `json:"lastKnownRemaining"`

	Probes  int `json:"probes"`
	Splits  int `json:"splits"`
	Skips   int `json:"skips"`
	Forced  int `json:"forced"`
	Commits int `json:"commits"`
}

// NewRunMetrics returns the metrics of a run that has not started.
func NewRunMetrics() RunMetrics {
	return RunMetrics{LastKnownRemaining: -1}
}

// Efficiency is records collected per cost unit, 0 when nothing was spent.
func (m RunMetrics) Efficiency() float64 {
	if m.TotalCostUnits == 0 {
		return 0
	}
	return float64(m.Collected) / float64(m.TotalCostUnits)
}

// costUnits returns the cost of a collection: one unit per started page of
// up to 100 records, and one unit for a forced range that yielded nothing.
func costUnits(records int, forced bool) int {
	units := (records + recordsPerCostUnit - 1) / recordsPerCostUnit
	if units == 0 && forced {
		units = 1
	}
	return units
}
