package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kpicalc/internal/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		info := buildinfo.Info()
		fmt.Printf("kpicalc %s", info["version"])
		if info["commit"] != "" {
			fmt.Printf(" (%s)", info["commit"])
		}
		if info["builtAt"] != "" {
			fmt.Printf(" built %s", info["builtAt"])
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
