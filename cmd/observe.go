package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/wrsn-sim/wrsn-sim/sim"
	"github.com/wrsn-sim/wrsn-sim/sim/observe"
)

// observeHandler serves the observation endpoints of a running simulation:
//
//	GET  /metrics  Prometheus exposition
//	GET  /observe  websocket metric stream
//	GET  /status   run counters as JSON
//	POST /pause, /resume, /stop
type observeHandler struct {
	sim *sim.Simulator
	mux *http.ServeMux
}

func newObserveHandler(s *sim.Simulator, prom *observe.PrometheusListener, stream *observe.Stream) *observeHandler {
	h := &observeHandler{sim: s, mux: http.NewServeMux()}
	if prom != nil {
		h.mux.Handle("GET /metrics", promhttp.HandlerFor(prom.Gatherer(), promhttp.HandlerOpts{}))
	}
	if stream != nil {
		h.mux.Handle("GET /observe", stream.Handler())
	}
	h.mux.HandleFunc("GET /status", h.status)
	h.mux.HandleFunc("POST /pause", h.control("pause", s.Pause))
	h.mux.HandleFunc("POST /resume", h.control("resume", s.Resume))
	h.mux.HandleFunc("POST /stop", h.control("stop", s.Stop))
	return h
}

func (h *observeHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(rw, r)
}

// statusResponse is the body of GET /status and of the control endpoints.
type statusResponse struct {
	Clock    float64 `json:"clock"`
	Executed int     `json:"executed"`
	Failed   int     `json:"failed"`
	Pending  int     `json:"pending"`
	Paused   bool    `json:"paused"`
	Stopped  bool    `json:"stopped"`
}

func (h *observeHandler) snapshot() statusResponse {
	st := h.sim.Stats()
	return statusResponse{
		Clock:    st.Clock,
		Executed: st.Executed,
		Failed:   st.Failed,
		Pending:  st.Pending,
		Paused:   h.sim.IsPaused(),
		Stopped:  h.sim.IsStopped(),
	}
}

func (h *observeHandler) status(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, h.snapshot())
}

func (h *observeHandler) control(name string, fn func()) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		logrus.Infof("Received %s from %s", name, r.RemoteAddr)
		fn()
		writeJSON(rw, h.snapshot())
	}
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		logrus.Debugf("Writing response: %v", err)
	}
}

// serveObserver serves handler on addr until ctx is cancelled or done is
// closed, then shuts the server down.
func serveObserver(ctx context.Context, addr string, handler http.Handler, done <-chan struct{}) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Observation server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("observation server: %w", err)
	case <-ctx.Done():
	case <-done:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down observation server: %w", err)
	}
	return nil
}
