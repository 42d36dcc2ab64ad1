package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/guardia-project/guardia/internal/config"
	"github.com/guardia-project/guardia/internal/logging"
	"github.com/guardia-project/guardia/internal/supervisor"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "guardia-hub",
	Short: "Guardia monitoring hub",
	Long:  `guardia-hub is the distributed monitoring hub: collectors, service monitors, the alert engine, storage, and the API server.`,
}

var runCmd = &cobra.Command{
	Use:   "run <config-path>",
	Short: "Run the hub until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.New(logging.Config{Format: logFormat, Level: logLevel, Component: "guardia-hub"})

		cfg, err := config.LoadFile(args[0])
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		watcher, err := config.NewWatcher(args[0], logger)
		if err != nil {
			logger.Warn().Err(err).Msg("config file watcher failed to start; restart-on-change notices are disabled")
		} else {
			defer watcher.Close()
		}

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		return supervisor.Run(ctx, supervisor.Options{
			Config:  cfg,
			Logger:  logger,
			Version: Version,
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <config-path>",
	Short: "Validate a config file without running the hub",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.LoadFile(args[0]); err != nil {
			return err
		}
		fmt.Println("config is valid")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("guardia-hub %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "Log format: json, console, or auto (console on a terminal)")
	rootCmd.AddCommand(runCmd, validateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
