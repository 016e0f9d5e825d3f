// Copyright (C) 2026 Aleutian Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/aleutianlabs/jrpcproxy/internal/config"
)

// cfg holds the fully layered configuration (defaults -> config file ->
// flags), populated by rootCmd.PersistentPreRun before any subcommand runs,
// matching the teacher's package-level config variable in cmd/aleutian.
var cfg config.Config

// --- flag-backed variables; zero values mean "not set on the command
// line" so config.ApplyFlags knows not to clobber the file/default value.
var (
	flagConfigPath  string
	flagPort        int
	flagTarget      string
	flagLogJSON     bool
	flagMetricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "jrpcproxy",
	Short: "An interactive, intercepting JSON-RPC 2.0 proxy",
	Long: `jrpcproxy sits between a JSON-RPC 2.0 client and an upstream server. It
records every request/response as a paired exchange, and, when paused, lets
an operator inspect, edit, allow, block, or hand-complete each request
before it reaches the upstream target.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(flagConfigPath)
		if err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
		cfg = config.ApplyFlags(loaded, flagPort, flagTarget, flagLogJSON, flagMetricsAddr)
	},
	// serve is the default action: running jrpcproxy with no subcommand
	// starts the proxy, matching spec.md §6's expectation of a single
	// runnable binary.
	Run: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "Path to a config file (default: ~/.jrpcproxy/config.yaml)")
	rootCmd.PersistentFlags().IntVar(&flagPort, "port", 0, "Port the proxy server listens on")
	rootCmd.PersistentFlags().StringVar(&flagTarget, "target", "", "Upstream JSON-RPC target URL")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false, "Emit structured JSON logs instead of text")
	rootCmd.PersistentFlags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (e.g. :9090); empty disables it")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
