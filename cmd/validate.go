package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wrsn-sim/wrsn-sim/sim/scenario"
)

var validateConfigPath string

// validateCmd checks a scenario without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a scenario file and print what it builds",
	Run: func(cmd *cobra.Command, args []string) {
		if validateConfigPath == "" {
			logrus.Fatalf("Scenario file not provided (--config)")
		}
		if err := validateScenario(validateConfigPath, os.Stdout); err != nil {
			logrus.Fatalf("Invalid scenario: %v", err)
		}
	},
}

// validateScenario loads, schema-checks and builds the scenario at path and
// writes a short description of the result to w.
func validateScenario(path string, w io.Writer) error {
	sc, env, err := scenario.LoadEnvironment(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "scenario %q is valid\n", sc.Name)
	fmt.Fprintf(w, "%-10s: %d\n", "sensors", len(env.Sensors()))
	fmt.Fprintf(w, "%-10s: %d\n", "chargers", len(env.Chargers()))
	fmt.Fprintf(w, "%-10s: %g\n", "end time", env.EndTime())
	for _, s := range env.Sensors() {
		if s.BelowRequest() {
			fmt.Fprintf(w, "%v starts below its request threshold\n", s)
		}
	}
	return nil
}

func init() {
	validateCmd.Flags().StringVarP(&validateConfigPath, "config", "c", "", "Scenario YAML file")
	rootCmd.AddCommand(validateCmd)
}
