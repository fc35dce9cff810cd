package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/tether/internal/config"
	"github.com/yairfalse/tether/internal/inventory"
	"github.com/yairfalse/tether/internal/telemetry"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitPartial = 2
)

var (
	version    = "0.1.0"
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "tether",
		Short: "EC2 attachment inventory",
		Long: `Tether - EC2 attachment inventory

Tether lists the EC2 instances in a region and, for each one, reports the
resources tied to it: volumes, security groups, elastic IPs, network
interfaces, load balancers, key pairs, images, auto scaling groups, and the
S3 buckets whose policies mention it.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.SetVersionTemplate(`Tether {{.Version}} - EC2 attachment inventory
`)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to TOML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	code := exitCode(err)
	if code == exitFailure {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return code
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, inventory.ErrPartial):
		return exitPartial
	default:
		return exitFailure
	}
}

// loadConfig reads the config file when one is given, defaults otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// setupLogging configures the global logger. Logs go to stderr so stdout
// carries only the report.
func setupLogging(level string, debug bool) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	if debug {
		lvl = zerolog.DebugLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Timestamp().
		Logger().
		Hook(telemetry.TraceHook{})
	return nil
}
