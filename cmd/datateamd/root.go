package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "datateamd",
	Short: "datateamd serves the multi-agent data analysis workflow",
	Long: `datateamd runs the supervisor-worker data analysis team behind an HTTP API.
Queries are routed between a data analyst and a business strategist until
both have delivered, then the combined result is streamed back as NDJSON.`,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
