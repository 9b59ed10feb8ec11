// Package testutil provides shared test infrastructure for the wrsn-sim
// packages: the golden physics dataset and float assertion helpers.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/goldendataset.json.
type GoldenDataset struct {
	ReceivedPower []GoldenReceivedPower `json:"received_power"`
	Travel        []GoldenTravel        `json:"travel"`
	Charge        []GoldenCharge        `json:"charge"`
}

// GoldenReceivedPower is one evaluation of the power decay curve.
type GoldenReceivedPower struct {
	TransmissionPower float64 `json:"transmission_power"`
	Distance          float64 `json:"distance"`
	ReceivedPower     float64 `json:"received_power"`
}

// GoldenTravel is one travel time and travel cost evaluation.
type GoldenTravel struct {
	Distance         float64 `json:"distance"`
	Speed            float64 `json:"speed"`
	TravelTime       float64 `json:"travel_time"`
	TravelEnergyCost float64 `json:"travel_energy_cost"`
}

// GoldenCharge is one transmission energy evaluation.
type GoldenCharge struct {
	TransmissionPower float64 `json:"transmission_power"`
	Duration          float64 `json:"duration"`
	CapacityUsed      float64 `json:"capacity_used"`
}

// RepoPath resolves a path relative to the repository root.
// The path is resolved relative to this source file: sim/internal/testutil/ → repo root.
func RepoPath(t *testing.T, elem ...string) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	root := filepath.Join(filepath.Dir(thisFile), "..", "..", "..")
	return filepath.Join(append([]string{root}, elem...)...)
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()
	data, err := os.ReadFile(RepoPath(t, "testdata", "goldendataset.json"))
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}
	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}
	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
