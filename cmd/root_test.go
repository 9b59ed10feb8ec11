package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrsn-sim/wrsn-sim/sim"
	"github.com/wrsn-sim/wrsn-sim/sim/observe"
	"github.com/wrsn-sim/wrsn-sim/sim/routing"
)

const smallScenario = "testdata/small.yaml"

func TestRunScenario_WritesMetricLog(t *testing.T) {
	// GIVEN the small scenario and a metric log destination
	out := filepath.Join(t.TempDir(), "metrics.jsonl.zst")

	// WHEN running it
	res, err := runScenario(context.Background(), runOptions{
		ConfigPath: smallScenario,
		EndTime:    -1,
		MetricsOut: out,
		RunID:      "test-run",
	})

	// THEN the run reaches its end time after one tour
	require.NoError(t, err)
	assert.Equal(t, "test-run", res.RunID)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 100.0, res.Stats.Clock)
	assert.Equal(t, 1, res.Summary.Tours)
	assert.InDelta(t, 85.0, res.Summary.EnergyDelivered, 1e-9)

	// AND every metric event was logged
	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	records, err := observe.ReadJSONL(f)
	require.NoError(t, err)
	total := 0
	for _, n := range res.Summary.Counts {
		total += n
	}
	assert.Len(t, records, total)
	for _, r := range records {
		assert.Equal(t, "test-run", r.RunID)
	}
	assert.Equal(t, sim.MetricSimulationStart, records[0].Kind)
	assert.Equal(t, sim.MetricSimulationEnd, records[len(records)-1].Kind)
}

func TestRunScenario_Overrides(t *testing.T) {
	seed := int64(99)
	res, err := runScenario(context.Background(), runOptions{
		ConfigPath: smallScenario,
		EndTime:    50,
		Seed:       &seed,
		Planner:    routing.MostCritical,
	})

	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Stats.Clock)
	assert.NotEmpty(t, res.RunID, "a run id is generated when none is given")
}

func TestRunScenario_MissingScenario(t *testing.T) {
	_, err := runScenario(context.Background(), runOptions{
		ConfigPath: filepath.Join(t.TempDir(), "absent.yaml"),
		EndTime:    -1,
	})

	assert.Error(t, err)
}

func TestRunScenario_StopsOnCancel(t *testing.T) {
	// GIVEN an unbounded run slowed down by a step delay
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// WHEN the context expires
	done := make(chan struct{})
	var res *runResult
	var err error
	go func() {
		defer close(done)
		res, err = runScenario(ctx, runOptions{
			ConfigPath: smallScenario,
			EndTime:    0,
			Delay:      time.Millisecond,
		})
	}()

	// THEN the run is stopped and reports what it executed
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}
	require.NoError(t, err)
	assert.Positive(t, res.Stats.Executed)
	assert.Zero(t, res.Stats.Pending)
}

func TestRunScenario_WithObservationServer(t *testing.T) {
	res, err := runScenario(context.Background(), runOptions{
		ConfigPath: smallScenario,
		EndTime:    -1,
		Listen:     "127.0.0.1:0",
	})

	require.NoError(t, err)
	assert.Equal(t, 100.0, res.Stats.Clock)
}

func TestPrintRunSummary(t *testing.T) {
	res := &runResult{
		RunID: "abc",
		Stats: sim.Stats{Clock: 12.5, Executed: 40, Failed: 1},
		Summary: observe.Summary{
			Counts:          map[sim.MetricKind]int{sim.MetricTourEnd: 2},
			Tours:           2,
			EnergyDelivered: 42,
		},
	}
	var buf bytes.Buffer

	printRunSummary(&buf, res, 1500*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "=== Simulation Run ===")
	assert.Contains(t, out, "abc")
	assert.Contains(t, out, "12.5000")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "=== Metric Summary ===")
	assert.Contains(t, out, "42.0000")
}

func TestValidateScenario(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, validateScenario(smallScenario, &buf))

	out := buf.String()
	assert.Contains(t, out, `scenario "small" is valid`)
	assert.Contains(t, out, "sensors   : 2")
	assert.Contains(t, out, "chargers  : 1")
	assert.Contains(t, out, "starts below its request threshold")
}

func TestValidateScenario_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: bad\nsensors: []\n"), 0o644))

	assert.Error(t, validateScenario(path, &bytes.Buffer{}))
}

func TestEnvOr(t *testing.T) {
	t.Setenv(envListen, ":9100")
	t.Setenv(envMetricsOut, "")

	assert.Equal(t, ":9100", envOr(envListen, ""))
	assert.Equal(t, "fallback", envOr(envMetricsOut, "fallback"))
	assert.Equal(t, "warn", envOr("WRSN_TEST_UNSET_VARIABLE", "warn"))
}

func TestLoadEnvDefaults(t *testing.T) {
	t.Setenv(envLogLevel, "debug")

	d := loadEnvDefaults()

	assert.Equal(t, "debug", d.LogLevel)
}
