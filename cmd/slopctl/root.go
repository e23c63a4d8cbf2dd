package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"slopos/logging"
)

// Version information, set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// Global flags, mirroring the teacher's root.go surface.
var (
	globalLog       string
	globalLogFormat string
	globalDebug     bool
)

var rootCmd = &cobra.Command{
	Use:   "slopctl",
	Short: "Host-side control tool for the SlopOS kernel core",
	Long: `slopctl drives the SlopOS kernel core (internal/kernel) against a
simulated hardware backend from the host, without a real bootloader or
CPU: it resolves boot command lines, runs integration-test suites, and
decodes interrupt frames captured from a run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
}

// Execute runs the root command under a context that cancels on
// SIGINT/SIGTERM, so itest --qemu can tear its child down cleanly.
func Execute() error {
	return rootCmd.ExecuteContext(GetContext())
}

// GetContext returns a context that cancels on SIGINT/SIGTERM, used by
// itest --qemu to tear down a spawned child cleanly.
func GetContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return ctx
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalLog, "log", "", "set the log file path")
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "set the format for log output (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
}

func setupLogging() {
	logOutput := os.Stderr
	if globalLog != "" {
		f, err := os.OpenFile(globalLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err == nil {
			logOutput = f
		}
	}

	logLevel := slog.LevelInfo
	if globalDebug {
		logLevel = slog.LevelDebug
	}

	if globalLogFormat == "json" || globalLog != "" || globalDebug {
		logger := logging.NewLogger(logging.Config{
			Level:  logLevel,
			Format: globalLogFormat,
			Output: logOutput,
		})
		logging.SetDefault(logger)
	}
}
