package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"slopos/bootcfg"
)

var bootCmdline string

var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "Parse a kernel command line and print the resolved boot configuration",
	Long: `boot runs the same parser the kernel core runs at start of day
(bootcfg.Parse) against a command line given on the host, and prints the
Config it resolves to. Useful for checking a Limine config.cfg CMDLINE
line before it ever reaches real hardware.`,
	Args: cobra.NoArgs,
	RunE: runBoot,
}

func init() {
	bootCmd.Flags().StringVar(&bootCmdline, "cmdline", "", "kernel command line to parse (space-separated key=value tokens)")
	rootCmd.AddCommand(bootCmd)
}

func runBoot(cmd *cobra.Command, args []string) error {
	cfg, err := bootcfg.Parse(bootCmdline)
	if err != nil {
		return fmt.Errorf("parse command line: %w", err)
	}

	fmt.Printf("itests:            %s\n", orNone(cfg.Itests))
	fmt.Printf("itests.verbosity:  %s\n", cfg.ItestsVerbosity)
	fmt.Printf("itests.timeout:    %dms\n", cfg.ItestsTimeoutMS)
	fmt.Printf("itests.shutdown:   %t\n", cfg.ItestsShutdown)
	fmt.Printf("log.level:         %s\n", cfg.LogLevel)
	fmt.Printf("log.format:        %s\n", cfg.LogFormat)
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
