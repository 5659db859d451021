// Package main is the entry point for the scriptdbg CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/scriptdbg/internal/cli"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

var (
	configPath  string
	stopOnEntry bool
	evalTimeout time.Duration
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "scriptdbg",
	Short: "interactive debugger for embedded Lua scripts",
	Long: `scriptdbg runs a Lua script under an interactive debugger: breakpoints
with guard conditions and hit counts, stepping, stack and variable
inspection, watch expressions.`,
}

var debugCmd = &cobra.Command{
	Use:   "debug <script.lua>",
	Short: "debug a script interactively",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// Interactive debugging stops at the first line so breakpoints can
		// be placed before anything runs.
		cfg.StopOnEntry = true

		logger, err := cli.NewLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		return cli.RunScript(args[0], cfg, logger)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <script.lua>",
	Short: "run a script to completion, pausing only on configured stops",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cfg.StopOnEntry = false

		logger, err := cli.NewLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		return cli.RunScript(args[0], cfg, logger)
	},
}

func loadConfig() (*cli.Config, error) {
	cfg, err := loadConfigFile()
	if err != nil {
		return nil, err
	}
	// Flags override file and environment.
	if stopOnEntry {
		cfg.StopOnEntry = true
	}
	if evalTimeout > 0 {
		cfg.EvalTimeout = evalTimeout
	}
	if verbose {
		cfg.LogLevel = "debug"
		if cfg.LogFile == "" {
			cfg.LogFile = "scriptdbg.log"
		}
	}
	return cfg, nil
}

func loadConfigFile() (*cli.Config, error) {
	if configPath != "" {
		return cli.LoadFromFile(configPath)
	}
	return cli.Load()
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("scriptdbg %s (%s)\n", version, commit))
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&stopOnEntry, "stop-on-entry", false, "pause before the first line runs")
	rootCmd.PersistentFlags().DurationVar(&evalTimeout, "timeout", 0, "expression evaluation timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug-level logging (to scriptdbg.log unless log_file is set)")
	rootCmd.AddCommand(debugCmd)
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
