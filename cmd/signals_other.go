//go:build !unix

package cmd

import "github.com/wrsn-sim/wrsn-sim/sim"

// togglePauseOnSignal waits for s to stop; there is no pause signal on this platform.
func togglePauseOnSignal(s *sim.Simulator) {
	<-s.Done()
}
