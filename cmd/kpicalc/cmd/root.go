package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	familiesFile string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "kpicalc",
	Short: "SLA/OLA compliance duration calculator",
	Long: `kpicalc computes business-calendar compliance durations for
lifecycle-tracked entities.

Given an entity's start, optional end, and its stop records, it derives
time-to-detect and time-to-mitigate working durations over a 24h Mon-Fri
calendar that excludes Spain national holidays, subtracts the applicable
SLA/OLA stop time, and emits a per-stop evidence trail.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&familiesFile, "families", "", "Family rules YAML file (default: built-in rules)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}

func printError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
}
