//go:build unix

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/wrsn-sim/wrsn-sim/sim"
)

// togglePauseOnSignal pauses or resumes s on every SIGUSR1 until s stops.
func togglePauseOnSignal(s *sim.Simulator) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	defer signal.Stop(ch)
	for {
		select {
		case <-ch:
			if s.IsPaused() {
				s.Resume()
			} else {
				s.Pause()
			}
			logrus.Debugf("SIGUSR1 received, paused=%t", s.IsPaused())
		case <-s.Done():
			return
		}
	}
}
