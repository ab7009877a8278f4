package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveVerificationThreadSafety(t *testing.T) {
	before := testutil.ToFloat64(verificationsTotal.WithLabelValues(OutcomeValid))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ObserveVerification(OutcomeValid)
		}()
	}
	wg.Wait()

	assert.Equal(t, before+100, testutil.ToFloat64(verificationsTotal.WithLabelValues(OutcomeValid)))
}

func TestObserveDecision(t *testing.T) {
	before := testutil.ToFloat64(decisionsTotal.WithLabelValues(SourceOracle, OutcomeInfeasible))
	ObserveDecision(SourceOracle, OutcomeInfeasible, 20*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(decisionsTotal.WithLabelValues(SourceOracle, OutcomeInfeasible)))
}

func TestScanGauges(t *testing.T) {
	SetScanLastChecked(3, 418)
	assert.Equal(t, float64(418), testutil.ToFloat64(scanLastChecked.WithLabelValues("3")))

	before := testutil.ToFloat64(scanCounterexamplesTotal.WithLabelValues("3"))
	EmitScanCounterexample(3)
	assert.Equal(t, before+1, testutil.ToFloat64(scanCounterexamplesTotal.WithLabelValues("3")))
}

func TestAddSearchNodes(t *testing.T) {
	before := testutil.ToFloat64(searchNodesTotal.WithLabelValues("mask"))
	AddSearchNodes("mask", 42)
	assert.Equal(t, before+42, testutil.ToFloat64(searchNodesTotal.WithLabelValues("mask")))
}

func TestRegister(t *testing.T) {
	registry := prometheus.NewRegistry()
	old := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = registry
	defer func() { prometheus.DefaultRegisterer = old }()

	require.NotPanics(t, Register)
	assert.Panics(t, Register, "collectors register once")
}

func TestWriteTextfile(t *testing.T) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(scanLastChecked)
	SetScanLastChecked(4, 238116)

	path := filepath.Join(t.TempDir(), "alpha.prom")
	require.NoError(t, WriteTextfile(registry, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `alpha_scan_last_checked{k="4"} 238116`), string(data))

	families, err := registry.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, dto.MetricType_GAUGE, families[0].GetType())
}

func TestWriteTextfileGatherError(t *testing.T) {
	failing := prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) {
		return nil, assert.AnError
	})
	assert.Error(t, WriteTextfile(failing, filepath.Join(t.TempDir(), "alpha.prom")))
}
