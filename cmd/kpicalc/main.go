package main

import (
	"os"

	"kpicalc/cmd/kpicalc/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
