package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rmitchellscott/inkprep/internal/config"
	"github.com/rmitchellscott/inkprep/internal/logging"
	"github.com/rmitchellscott/inkprep/internal/version"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "inkprep",
	Short: "Prepare images for color e-paper displays",
	Long: `inkprep crops, resamples and dithers images to the exact resolution and
fixed palette of Inky e-paper panels, producing indexed PNGs the panel
driver can write directly.

It runs as an HTTP service for the dashboard (serve) or as a one-shot
tool (prepare, dimensions, displays).`,
	Version:       version.String(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Configure(os.Stderr, logging.ParseLevel(effectiveLogLevel(logLevel, config.Load())))
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error (default $LOG_LEVEL)")
}

// effectiveLogLevel prefers the --log-level flag over the configured
// LOG_LEVEL.
func effectiveLogLevel(flag string, cfg config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.LogLevel
}
