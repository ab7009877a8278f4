package metrics

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const (
	SourceLabel   = "source"
	StrategyLabel = "strategy"
	KLabel        = "k"
	Outcome       = "outcome"

	SourceSearch = "search"
	SourceOracle = "oracle"

	OutcomeFeasible   = "feasible"
	OutcomeInfeasible = "infeasible"
	OutcomeUnknown    = "unknown"
	OutcomeError      = "error"

	OutcomeValid     = "valid"
	OutcomeMismatch  = "mismatch"
	OutcomeMalformed = "malformed"
)

// To add new metrics:
// 1. Register new metrics in Register() below.
// 2. Add an Emit or Observe helper for the code that updates them.
var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alpha_decisions_total",
			Help: "Monotonic count of feasibility decisions by source and outcome",
		},
		[]string{SourceLabel, Outcome},
	)

	decisionDurationSummary = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "alpha_decision_duration_seconds",
			Help:       "The duration of a feasibility decision",
			Objectives: map[float64]float64{0.95: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{SourceLabel},
	)

	searchNodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alpha_search_nodes_total",
			Help: "Monotonic count of nodes expanded by the exhaustive search",
		},
		[]string{StrategyLabel},
	)

	scanLastChecked = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alpha_scan_last_checked",
			Help: "The largest n classified so far by the range scanner",
		},
		[]string{KLabel},
	)

	scanCounterexamplesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alpha_scan_counterexamples_total",
			Help: "Monotonic count of integers found to need more than k sets",
		},
		[]string{KLabel},
	)

	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alpha_verifications_total",
			Help: "Monotonic count of document verifications by outcome",
		},
		[]string{Outcome},
	)
)

// Register adds every collector to the default registry.
func Register() {
	prometheus.MustRegister(decisionsTotal)
	prometheus.MustRegister(decisionDurationSummary)
	prometheus.MustRegister(searchNodesTotal)
	prometheus.MustRegister(scanLastChecked)
	prometheus.MustRegister(scanCounterexamplesTotal)
	prometheus.MustRegister(verificationsTotal)
}

func ObserveDecision(source, outcome string, duration time.Duration) {
	decisionsTotal.WithLabelValues(source, outcome).Inc()
	decisionDurationSummary.WithLabelValues(source).Observe(duration.Seconds())
}

func AddSearchNodes(strategy string, nodes uint64) {
	searchNodesTotal.WithLabelValues(strategy).Add(float64(nodes))
}

func SetScanLastChecked(k, n int) {
	scanLastChecked.WithLabelValues(strconv.Itoa(k)).Set(float64(n))
}

func EmitScanCounterexample(k int) {
	scanCounterexamplesTotal.WithLabelValues(strconv.Itoa(k)).Inc()
}

func ObserveVerification(outcome string) {
	verificationsTotal.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes everything g gathers to path in the text
// exposition format, replacing the file atomically so a textfile
// collector never reads a partial snapshot.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	families, err := g.Gather()
	if err != nil {
		return errors.Wrap(err, "gathering metrics")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "creating metrics file")
	}
	defer os.Remove(tmp.Name())
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(tmp, mf); err != nil {
			tmp.Close()
			return errors.Wrap(err, "writing metrics file")
		}
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "writing metrics file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "replacing metrics file")
}
