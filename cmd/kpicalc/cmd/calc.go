package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kpicalc/internal/calendar"
	"kpicalc/internal/config"
	"kpicalc/internal/input"
	"kpicalc/internal/kpi"
	"kpicalc/internal/timefmt"
)

var (
	inputFile   string
	showExplain bool
	asJSON      bool
)

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Compute KPIs for one entity input file",
	Long: `Computes TTD/TTM and the SLA/OLA compliance durations for a single
entity described by a JSON input file.

The file carries the entity type, lifecycle timestamps in the
"dd/mm/yyyy - HH:MM" format, and the stop records:

  {
    "entity_type": "Provisión",
    "is_finalized": true,
    "start": "02/03/2026 - 09:00",
    "end":   "04/03/2026 - 18:00",
    "now":   "05/03/2026 - 10:00",
    "stops": [
      {"type": "Global", "start": "03/03/2026 - 10:00", "end": "03/03/2026 - 11:00"}
    ]
  }`,
	RunE: runCalc,
}

func init() {
	calcCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Entity input JSON file (required)")
	calcCmd.Flags().BoolVar(&showExplain, "explain", false, "Print the full evidence tree")
	calcCmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw result document as JSON")
	_ = calcCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(calcCmd)
}

func runCalc(cmd *cobra.Command, args []string) error {
	in, err := input.LoadFile(inputFile)
	if err != nil {
		printError("load input", err)
		return err
	}

	families := config.Default()
	if familiesFile != "" {
		families, err = config.Load(familiesFile)
		if err != nil {
			printError("load family rules", err)
			return err
		}
	}

	calc := kpi.NewCalculator(calendar.New(calendar.SpainNationalHolidays{}), families)
	res, err := calc.Calculate(in)
	if err != nil {
		printError("calculate", err)
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Printf("Entity:    %s", in.EntityType)
	if in.IsFinalized {
		fmt.Printf(" (finalized)")
	}
	fmt.Println()
	fmt.Printf("Window:    %s -> ", timefmt.Format(in.Start))
	if in.End != nil {
		fmt.Printf("%s", timefmt.Format(*in.End))
	} else {
		fmt.Printf("open")
	}
	fmt.Printf("  (now %s)\n", timefmt.Format(in.Now))
	fmt.Println()

	printDuration("TTD", &res.TTDSeconds)
	printDuration("TTM", res.TTMSeconds)
	fmt.Println()
	printDuration("SLA real", res.SLARealSeconds)
	printDuration("SLA to date", res.SLAToDateSeconds)
	printDuration("OLA real", res.OLARealSeconds)
	printDuration("OLA to date", res.OLAToDateSeconds)
	fmt.Println()
	fmt.Printf("Stop time:  SLA %ds, OLA %ds\n", res.StopsSLASeconds, res.StopsOLASeconds)

	if showExplain {
		fmt.Println()
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Explain)
	}
	return nil
}

func printDuration(label string, secs *int64) {
	if secs == nil {
		if verbose {
			fmt.Printf("  %-12s n/a\n", label)
		}
		return
	}
	fmt.Printf("  %-12s %s  (%d s)\n", label, timefmt.DHM(*secs), *secs)
}
