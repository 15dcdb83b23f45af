// Copyright (C) 2025, Kiln Labs Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilnlabs/kiln/internal/config"
	"github.com/kilnlabs/kiln/pkg/log"
)

const programName = "kilnd"

var (
	Version   = "dev"
	GitCommit = "unknown"

	configFile string
	listenAddr string
	opsAddr    string
	logLevel   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   programName,
		Short: "Kiln token emission daemon",
		Long: programName + ` runs the kiln emission platform: slot-occupancy
mining with per-slot reverse Dutch auctions, and the prize-pool chance
game, behind a JSON API with a metrics sidecar.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "API listen address (overrides config)")
	rootCmd.PersistentFlags().StringVar(&opsAddr, "ops-listen", "", "ops listen address (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s %s (commit: %s)\n", programName, Version, GitCommit)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if listenAddr != "" {
		cfg.ListenAddress = listenAddr
	}
	if opsAddr != "" {
		cfg.OpsListenAddress = opsAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	logger := log.NewWithLevel(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting",
		"program", programName,
		"version", Version,
		"commit", GitCommit,
	)

	node, err := NewNode(cfg, logger)
	if err != nil {
		return fmt.Errorf("building node: %w", err)
	}
	return node.Run()
}
