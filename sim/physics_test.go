package sim

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrsn-sim/wrsn-sim/sim/internal/testutil"
)

func TestReceivedPower_GoldenDataset(t *testing.T) {
	dataset := testutil.LoadGoldenDataset(t)
	require.NotEmpty(t, dataset.ReceivedPower)
	for _, tc := range dataset.ReceivedPower {
		got := ReceivedPower(tc.TransmissionPower, tc.Distance)
		testutil.AssertFloat64Equal(t, "received power", tc.ReceivedPower, got, 1e-9)
	}
}

func TestTravel_GoldenDataset(t *testing.T) {
	dataset := testutil.LoadGoldenDataset(t)
	for _, tc := range dataset.Travel {
		travelTime, err := TravelTime(tc.Distance, tc.Speed)
		require.NoError(t, err)
		testutil.AssertFloat64Equal(t, "travel time", tc.TravelTime, travelTime, 1e-9)
		testutil.AssertFloat64Equal(t, "travel energy cost", tc.TravelEnergyCost, TravelEnergyCost(travelTime), 1e-9)
	}
	for _, tc := range dataset.Charge {
		testutil.AssertFloat64Equal(t, "capacity used", tc.CapacityUsed, CapacityUsed(tc.TransmissionPower, tc.Duration), 1e-9)
	}
}

func TestReceivedPower_PolynomialAtDistanceTwo(t *testing.T) {
	// 5 * (-0.0958*4 - 0.0377*2 + 1) = 5 * 0.5414
	assert.InDelta(t, 2.707, ReceivedPower(5, 2), 1e-12)
	assert.Equal(t, 5.0, ReceivedPower(5, 0))
	assert.Less(t, ReceivedPower(5, 4), 0.0, "the curve goes negative far from the charger")
}

func TestTravelTimeAndCost_Scenario(t *testing.T) {
	// GIVEN a charger with speed 2 traveling 10 units
	c := newTestCharger(t, ChargerParams{CurrentCapacity: 100, MaxCapacity: 100, Radius: 1, TransmissionPower: 5, Speed: 2})

	travelTime, err := c.TravelTime(10)

	// THEN it takes 5 time units and costs 7.4*5+0.29
	require.NoError(t, err)
	assert.Equal(t, 5.0, travelTime)
	assert.InDelta(t, 37.29, c.TravelEnergyCost(travelTime), 1e-12)
}

func TestTravelTime_NonPositiveSpeedFails(t *testing.T) {
	for _, speed := range []float64{0, -1} {
		_, err := TravelTime(10, speed)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "speed %v: got %v", speed, err)
		assert.Equal(t, "speed", verr.Field)
	}
}

func TestCapacityUsed(t *testing.T) {
	assert.Equal(t, 60.0, CapacityUsed(5, 12))
	c := newTestCharger(t, defaultChargerParams())
	assert.Equal(t, 50.0, c.CapacityUsed(10))
}
