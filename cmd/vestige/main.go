package main

import (
	"errors"
	"os"

	"github.com/fatih/color"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	if errors.Is(err, errFindings) {
		os.Exit(1)
	}
	color.Red("Error: %v", err)
	os.Exit(2)
}
