package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wrsn-sim/wrsn-sim/sim"
	"github.com/wrsn-sim/wrsn-sim/sim/observe"
	"github.com/wrsn-sim/wrsn-sim/sim/routing"
	"github.com/wrsn-sim/wrsn-sim/sim/scenario"
)

var (
	// CLI flags for the run command
	configPath  string        // Scenario YAML file
	logLevel    string        // Log verbosity level
	delay       time.Duration // Wall-clock pause after each step
	endTime     float64       // Overrides the scenario end time when >= 0
	seed        int64         // Overrides the scenario seed when set
	metricsOut  string        // zstd-compressed JSONL metric log
	listenAddr  string        // Observation server address
	plannerName string        // Overrides the scenario planner
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "wrsn-sim",
	Short: "Discrete-event simulator for wireless rechargeable sensor networks",
}

// runOptions carries everything runScenario needs, decoupled from cobra.
type runOptions struct {
	ConfigPath  string
	EndTime     float64 // < 0 keeps the scenario value
	Seed        *int64
	Delay       time.Duration
	MetricsOut  string
	Listen      string
	Planner     string
	RunID       string
	SignalPause bool // toggle pause on SIGUSR1
}

// runResult is what a finished run reports.
type runResult struct {
	RunID   string
	Stats   sim.Stats
	Summary observe.Summary
	Errors  []error
}

// runCmd executes the simulation described by a scenario file
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a WRSN simulation scenario",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if configPath == "" {
			logrus.Fatalf("Scenario file not provided (--config)")
		}
		if !routing.IsValidPlanner(plannerName) {
			logrus.Fatalf("Unknown planner %q; valid: %v", plannerName, routing.ValidPlannerNames())
		}

		opts := runOptions{
			ConfigPath:  configPath,
			EndTime:     endTime,
			Delay:       delay,
			MetricsOut:  metricsOut,
			Listen:      listenAddr,
			Planner:     plannerName,
			SignalPause: true,
		}
		if cmd.Flags().Changed("seed") {
			opts.Seed = &seed
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		startTime := time.Now()
		res, err := runScenario(ctx, opts)
		if err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}
		printRunSummary(os.Stdout, res, time.Since(startTime))
		logrus.Info("Simulation complete.")
	},
}

// runScenario loads and builds the scenario, wires the observers and runs the
// simulation to completion. The observation server, when enabled, runs next
// to the simulation and shuts down once it ends.
func runScenario(ctx context.Context, opts runOptions) (*runResult, error) {
	sc, err := scenario.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.Seed != nil {
		sc.Seed = *opts.Seed
	}
	if opts.EndTime >= 0 {
		sc.EndTime = opts.EndTime
	}
	if opts.Planner != "" {
		sc.Planner.Type = opts.Planner
	}
	env, err := sc.Build()
	if err != nil {
		return nil, err
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	planner := sc.Planner.Type
	if planner == "" {
		planner = routing.NearestNeighbor
	}
	logrus.WithField("run", runID).Infof("Starting scenario %q (seed=%d, end_time=%g, planner=%s)",
		sc.Name, sc.Seed, sc.EndTime, planner)

	s := sim.NewSimulator(env)
	s.SetDelay(opts.Delay)

	recorder := observe.NewRecorder()
	s.Metrics().AddListener(recorder)
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		s.Metrics().AddListener(observe.NewLogListener(nil, logrus.DebugLevel, runID))
	}
	if opts.MetricsOut != "" {
		jw, err := observe.CreateJSONLFile(opts.MetricsOut, runID)
		if err != nil {
			return nil, fmt.Errorf("creating metric log: %w", err)
		}
		s.Metrics().AddListener(jw)
	}

	var handler *observeHandler
	if opts.Listen != "" {
		prom, err := observe.NewPrometheusListener(prometheus.NewRegistry())
		if err != nil {
			s.Stop()
			return nil, err
		}
		prom.Seed(env)
		stream := observe.NewStream(runID, 0)
		s.Metrics().AddListener(prom)
		s.Metrics().AddListener(stream)
		handler = newObserveHandler(s, prom, stream)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.Run()
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			s.Stop()
		case <-s.Done():
		}
		return nil
	})
	if opts.SignalPause {
		g.Go(func() error {
			togglePauseOnSignal(s)
			return nil
		})
	}
	if handler != nil {
		g.Go(func() error {
			return serveObserver(gctx, opts.Listen, handler, s.Done())
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &runResult{
		RunID:   runID,
		Stats:   s.Stats(),
		Summary: recorder.Summary(),
		Errors:  s.Errors(),
	}, nil
}

func printRunSummary(w io.Writer, res *runResult, elapsed time.Duration) {
	fmt.Fprintln(w, "=== Simulation Run ===")
	fmt.Fprintf(w, "%-20s: %s\n", "run id", res.RunID)
	fmt.Fprintf(w, "%-20s: %.4f\n", "simulation time", res.Stats.Clock)
	fmt.Fprintf(w, "%-20s: %d\n", "events executed", res.Stats.Executed)
	fmt.Fprintf(w, "%-20s: %d\n", "events failed", res.Stats.Failed)
	fmt.Fprintf(w, "%-20s: %d\n", "events rejected", res.Stats.Rejected)
	fmt.Fprintf(w, "%-20s: %s\n", "wall time", elapsed.Round(time.Millisecond))
	res.Summary.Print(w)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	env := loadEnvDefaults()

	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "Scenario YAML file")
	runCmd.Flags().StringVar(&logLevel, "log", env.LogLevel, "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().DurationVar(&delay, "delay", 0, "Wall-clock delay after each simulation step (e.g. 50ms)")
	runCmd.Flags().Float64Var(&endTime, "end-time", -1, "Override the scenario end time (0 = unbounded)")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Override the scenario seed")
	runCmd.Flags().StringVar(&metricsOut, "metrics-out", env.MetricsOut, "Write every metric event to this zstd-compressed JSONL file")
	runCmd.Flags().StringVar(&listenAddr, "listen", env.Listen, "Serve /metrics, /observe and run controls on this address")
	runCmd.Flags().StringVar(&plannerName, "planner", "", "Override the scenario tour planner (nearest-neighbor, most-critical)")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
