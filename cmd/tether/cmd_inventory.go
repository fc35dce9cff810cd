package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/tether/internal/config"
	"github.com/yairfalse/tether/internal/emitter"
	"github.com/yairfalse/tether/internal/filter"
	"github.com/yairfalse/tether/internal/inventory"
	"github.com/yairfalse/tether/internal/plugin"
	"github.com/yairfalse/tether/internal/plugin/aws"
	"github.com/yairfalse/tether/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

type inventoryFlags struct {
	region       string
	profile      string
	output       string
	color        bool
	summary      bool
	metricsFile  string
	noReuseIndex bool
	states       []string
	exclude      []string
}

func newInventoryCmd() *cobra.Command {
	flags := &inventoryFlags{}

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Report every instance and its attached resources",
		Long: `Inventory lists the EC2 instances in a region and correlates the resources
attached to each one. Instances are reported one at a time, in listing order.

Exits 0 when everything resolved, 2 when some categories could not be
looked up, and 1 when the run could not complete.`,
		Example: `  tether inventory                          # Default region and credentials
  tether inventory --region eu-west-1       # Specific region
  tether inventory -o yaml                  # YAML documents, one per instance
  tether inventory --summary --color        # Colored report plus a summary table
  tether inventory --state running          # Skip stopped and terminated instances
  tether inventory --metrics-file run.prom  # Also write run metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if err := setupLogging(cfg.Log.Level, debug); err != nil {
				return err
			}
			return runInventory(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.region, "region", "r", "", "AWS region (default from the AWS config chain)")
	f.StringVar(&flags.profile, "profile", "", "AWS shared config profile")
	f.StringVarP(&flags.output, "output", "o", "text", "Output format: text, yaml")
	f.BoolVar(&flags.color, "color", false, "Colorize text output")
	f.BoolVar(&flags.summary, "summary", false, "Print a summary table after the report")
	f.StringVar(&flags.metricsFile, "metrics-file", "", "Write run metrics in Prometheus textfile format")
	f.BoolVar(&flags.noReuseIndex, "no-reuse-index", false, "Rebuild load balancer and bucket indexes for every instance")
	f.StringSliceVar(&flags.states, "state", nil, "Only correlate instances in these states (e.g. running,stopped)")
	f.StringSliceVar(&flags.exclude, "exclude", nil, "Instance IDs to skip")

	return cmd
}

func init() {
	rootCmd.AddCommand(newInventoryCmd())
}

// apply overrides config values with flags set on the command line.
func (f *inventoryFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("region") {
		cfg.AWS.Region = f.region
	}
	if changed("profile") {
		cfg.AWS.Profile = f.profile
	}
	if changed("output") {
		cfg.Report.Output = f.output
	}
	if changed("color") {
		cfg.Report.Color = f.color
	}
	if changed("summary") {
		cfg.Report.Summary = f.summary
	}
	if changed("metrics-file") {
		cfg.Report.MetricsFile = f.metricsFile
	}
	if changed("no-reuse-index") {
		reuse := !f.noReuseIndex
		cfg.Discovery.ReuseIndex = &reuse
	}
	if changed("state") {
		cfg.Discovery.States = f.states
	}
	if changed("exclude") {
		cfg.Discovery.ExcludeInstances = f.exclude
	}
}

func runInventory(ctx context.Context, cfg *config.Config, out io.Writer) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tp, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := tp.Shutdown(shutdownCtx); serr != nil {
			log.Warn().Err(serr).Msg("telemetry shutdown failed")
		}
	}()

	awsPlugin, err := aws.New(ctx, aws.Config{
		Region:             cfg.AWS.Region,
		Profile:            cfg.AWS.Profile,
		ReuseIndex:         cfg.Discovery.ShouldReuseIndex(),
		TargetGroupLBTypes: cfg.Discovery.TargetGroupLBTypes,
		LBPageSize:         cfg.Discovery.LBPageSize,
		Observe:            tp.RecordStep,
	})
	if err != nil {
		return fmt.Errorf("create aws plugin: %w", err)
	}
	plugin.Register(awsPlugin)

	p, ok := plugin.Get("aws")
	if !ok {
		return errors.New("aws plugin not registered")
	}

	emit, err := newEmitter(cfg.Report, tp, out)
	if err != nil {
		return err
	}

	selection := filter.New(cfg.Discovery.States, cfg.Discovery.ExcludeInstances)

	log.Info().
		Str("region", awsPlugin.Region()).
		Str("output", cfg.Report.Output).
		Bool("reuse_index", cfg.Discovery.ShouldReuseIndex()).
		Msg("tether starting")

	var g run.Group
	g.Add(func() error {
		_, err := inventory.Run(ctx, p, selection, emit)
		return err
	}, func(error) {
		cancel()
	})
	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	runErr := g.Run()
	var sigErr run.SignalError
	if errors.As(runErr, &sigErr) {
		log.Info().Str("signal", sigErr.Signal.String()).Msg("interrupted")
	}

	closeErr := emit.Close()
	var metricsErr error
	if cfg.Report.MetricsFile != "" {
		metricsErr = tp.WriteTextfile(cfg.Report.MetricsFile)
	}

	return errors.Join(runErr, closeErr, metricsErr)
}

// newEmitter builds the report emitter for the configured format, paired
// with the metrics emitter.
func newEmitter(cfg config.ReportConfig, tp *telemetry.Provider, out io.Writer) (emitter.Emitter, error) {
	var report emitter.Emitter
	switch cfg.Output {
	case "yaml":
		report = emitter.NewYAMLEmitter(out)
	case "text":
		report = emitter.NewTextEmitter(out, cfg.Color, cfg.Summary)
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.Output)
	}

	metrics, err := emitter.NewMetricsEmitter(tp.Meter())
	if err != nil {
		return nil, fmt.Errorf("create metrics emitter: %w", err)
	}

	return emitter.NewMultiEmitter(report, metrics), nil
}
