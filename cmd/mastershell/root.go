package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mastershell/internal/config"
)

// Version is stamped by the release build; "dev" otherwise.
var Version = "dev"

var (
	flagConfig   string
	flagGrace    time.Duration
	flagListen   string
	flagNoColor  bool
	flagLogLevel string
	flagLogFile  string
)

var rootCmd = &cobra.Command{
	Use:     "mastershell",
	Short:   "Interactive console supervisor for long-running child processes",
	Version: Version,
	Long: `mastershell starts every session named in its launch configuration,
merges their output onto one console, and routes typed lines of the form

    <session> <payload>

to the named session's stdin. Typing "exit" stops all sessions and quits.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSupervisor(cmd)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the mastershell version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "mastershell", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.Flags().StringVarP(&flagConfig, "config", "c", "mastershell.yaml", "path to the launch configuration")
	rootCmd.Flags().DurationVar(&flagGrace, "grace-period", 0, "override the configured cooperative stop grace period")
	rootCmd.Flags().StringVar(&flagListen, "listen", "", "serve the observer endpoint on this address")
	rootCmd.Flags().BoolVar(&flagNoColor, "no-color", false, "disable console colors")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "minimum log level (debug, info, warning, error)")
	rootCmd.Flags().StringVar(&flagLogFile, "log-file", "", "append supervisor logs to this file")
}

// applyOverrides layers command-line flags over the loaded configuration.
// Only flags the operator actually set win over the file.
func applyOverrides(cfg *config.Config, cmd *cobra.Command) error {
	if cmd.Flags().Changed("grace-period") {
		if flagGrace <= 0 {
			return fmt.Errorf("grace-period must be positive")
		}
		cfg.GracePeriod = flagGrace
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = flagListen
	}
	if flagNoColor || os.Getenv("NO_COLOR") != "" {
		cfg.NoColor = true
	}
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "mastershell:", err)
		return 1
	}
	return 0
}
