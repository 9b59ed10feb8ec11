package sim

// Charger physics. These are the only valid ways a capacity changes because of
// a physical process; the coefficients are calibrated against hardware
// measurements and must be kept as they are.

// ReceivedPower returns the power received at distance from a charger emitting
// transmissionPower. The curve goes negative past roughly 2.96 distance units;
// callers treat non-positive values as "out of range".
func ReceivedPower(transmissionPower, distance float64) float64 {
	return transmissionPower * (-0.0958*distance*distance - 0.0377*distance + 1)
}

// TravelTime returns the time needed to cover distance at speed.
func TravelTime(distance, speed float64) (float64, error) {
	if err := positive("speed", speed); err != nil {
		return 0, err
	}
	return distance / speed, nil
}

// TravelEnergyCost returns the energy a charger consumes while traveling for travelTime.
func TravelEnergyCost(travelTime float64) float64 {
	return 7.4*travelTime + 0.29
}

// CapacityUsed returns the energy spent transmitting at transmissionPower for duration.
func CapacityUsed(transmissionPower, duration float64) float64 {
	return transmissionPower * duration
}
