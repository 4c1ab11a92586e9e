package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/engine"
	"github.com/wesleyorama2/surge/internal/logging"
	"github.com/wesleyorama2/surge/internal/output"
)

const (
	defaultCLIStages = "30s:10"
	progressInterval = time.Second
)

var errNoTarget = errors.New("either a config file or --url is required")

// runOptions holds the flags of the run command.
type runOptions struct {
	configFile   string
	url          string
	method       string
	stages       string
	sleep        string
	expectStatus int
	timeout      string
	tick         string
	gracefulStop string
	out          string
	noColor      bool
	quiet        bool
	logLevel     string
	logFormat    string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [config-file]",
		Short: "Run a load test",
		Long: `Run a load test from a YAML or JSON configuration file, or build a
single-request test from flags.

Config file mode:
  surge run examples/health-ramp.yaml

Quick CLI mode:
  surge run --url https://api.example.com/health \
    --stages "30s:500,90s:500,20s:0" \
    --sleep 1s --expect-status 200`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.configFile = args[0]
			}
			return runLoadTest(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "Path to a YAML or JSON test configuration")
	f.StringVar(&opts.url, "url", "", "Target URL for a single-request test")
	f.StringVarP(&opts.method, "method", "X", "GET", "HTTP method for --url")
	f.StringVar(&opts.stages, "stages", "", `Stages as duration:target pairs, e.g. "30s:500,90s:500,20s:0"`)
	f.StringVar(&opts.sleep, "sleep", "", "Pause after each iteration, e.g. 1s")
	f.IntVar(&opts.expectStatus, "expect-status", 0, "Check that every response has this status code")
	f.StringVar(&opts.timeout, "timeout", "", "Request timeout, e.g. 10s")
	f.StringVar(&opts.tick, "tick", "", "How often the virtual user target is recomputed")
	f.StringVar(&opts.gracefulStop, "graceful-stop", "", "How long in-flight iterations may finish after the schedule ends")
	f.StringVarP(&opts.out, "out", "o", "", "Write the JSON summary to this file")
	f.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "Suppress live progress")
	f.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", logging.FormatConsole, "Log format (console, json)")

	return cmd
}

// runLoadTest runs a test and prints its summary.
func runLoadTest(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadRunConfig(opts)
	if err != nil {
		return err
	}

	logger, err := logging.New(opts.logLevel, opts.logFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	eng, err := engine.NewFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	sched, err := cfg.Schedule()
	if err != nil {
		return err
	}

	console := output.NewConsoleAuto(cmd.OutOrStdout(), opts.noColor)
	if !opts.quiet {
		console.PrintHeader(cfg.Name, sched)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// A second interrupt kills the process.
		<-ctx.Done()
		stop()
	}()

	done := make(chan struct{})
	var sum *engine.Summary
	var runErr error
	go func() {
		defer close(done)
		sum, runErr = eng.Run(ctx)
	}()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
progressLoop:
	for {
		select {
		case <-done:
			break progressLoop
		case <-ticker.C:
			if opts.quiet {
				continue
			}
			if st := eng.Status(); st.Running {
				console.Update(st)
			}
		}
	}

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}
	if sum.Interrupted {
		logger.Warn("run interrupted", zap.String("run_id", sum.RunID))
	}

	console.PrintSummary(sum)

	if opts.out != "" {
		if err := output.WriteJSONFile(opts.out, sum); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Summary written to %s\n", opts.out)
	}

	if !sum.Passed {
		return errThresholdsFailed
	}
	return nil
}

// loadRunConfig loads the config file or builds one from flags, then
// applies flag overrides.
func loadRunConfig(opts *runOptions) (*config.TestConfig, error) {
	var cfg *config.TestConfig
	var err error

	switch {
	case opts.configFile != "":
		cfg, err = config.LoadConfig(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	case opts.url != "":
		cfg, err = buildConfigFromCLI(opts)
		if err != nil {
			return nil, fmt.Errorf("error building config: %w", err)
		}
	default:
		return nil, errNoTarget
	}

	if err := applyOverrides(cfg, opts); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildConfigFromCLI builds a single-request TestConfig from flags.
func buildConfigFromCLI(opts *runOptions) (*config.TestConfig, error) {
	stagesStr := opts.stages
	if stagesStr == "" {
		stagesStr = defaultCLIStages
	}
	stages, err := config.ParseStages(stagesStr)
	if err != nil {
		return nil, fmt.Errorf("invalid stages format: %w", err)
	}

	req := config.RequestConfig{
		Name:   "cli-request",
		Method: opts.method,
		URL:    opts.url,
	}
	if opts.expectStatus != 0 {
		req.Checks = []config.CheckConfig{{
			Name:      fmt.Sprintf("status was %d", opts.expectStatus),
			Type:      "status",
			Condition: "eq",
			Value:     strconv.Itoa(opts.expectStatus),
		}}
	}

	cfg := &config.TestConfig{
		Name:        "CLI Test",
		Description: fmt.Sprintf("Test generated from CLI flags for %s", opts.url),
		Stages:      stages,
		Scenario: config.ScenarioConfig{
			Name:     "cli-test",
			Requests: []config.RequestConfig{req},
		},
	}
	if opts.sleep != "" {
		cfg.Scenario.Pacing = &config.PacingConfig{Type: "constant", Duration: opts.sleep}
	}
	return cfg, nil
}

// applyOverrides lets flags replace settings from a config file.
func applyOverrides(cfg *config.TestConfig, opts *runOptions) error {
	if opts.configFile != "" && opts.stages != "" {
		stages, err := config.ParseStages(opts.stages)
		if err != nil {
			return fmt.Errorf("invalid stages format: %w", err)
		}
		cfg.Stages = stages
	}

	if opts.timeout != "" {
		d, err := config.ParseDurationString(opts.timeout)
		if err != nil {
			return fmt.Errorf("invalid --timeout: %w", err)
		}
		cfg.Settings.Timeout = config.Duration(d)
	}

	if opts.tick == "" && opts.gracefulStop == "" {
		return nil
	}
	if cfg.Options == nil {
		cfg.Options = &config.ExecutionOptions{}
	}
	if opts.tick != "" {
		d, err := config.ParseDurationString(opts.tick)
		if err != nil {
			return fmt.Errorf("invalid --tick: %w", err)
		}
		cfg.Options.Tick = config.Duration(d)
	}
	if opts.gracefulStop != "" {
		d, err := config.ParseDurationString(opts.gracefulStop)
		if err != nil {
			return fmt.Errorf("invalid --graceful-stop: %w", err)
		}
		cfg.Options.GracefulStop = config.Duration(d)
	}
	return nil
}
