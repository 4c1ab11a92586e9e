package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/surge/internal/config"
	"github.com/wesleyorama2/surge/internal/output"
	"github.com/wesleyorama2/surge/internal/scenario"
)

func newValidateCmd() *cobra.Command {
	var noColor bool
	cmd := &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Check a test configuration without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfigFile(cmd, args[0], noColor)
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	return cmd
}

func validateConfigFile(cmd *cobra.Command, path string, noColor bool) error {
	out := cmd.OutOrStdout()
	noColor = noColor || !output.IsTerminal(out)

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	config.ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		var verrs *config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs.Errors {
				fmt.Fprintf(out, "%s %s\n", output.ErrorIcon(noColor), e.Error())
			}
		}
		return fmt.Errorf("%s is invalid: %w", path, err)
	}

	sched, err := cfg.Schedule()
	if err != nil {
		return err
	}
	spec, err := cfg.ScenarioSpec()
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", path, err)
	}
	if _, err := scenario.FromSpec(spec); err != nil {
		fmt.Fprintf(out, "%s %v\n", output.ErrorIcon(noColor), err)
		return fmt.Errorf("%s is invalid: %w", path, err)
	}

	fmt.Fprintf(out, "%s %s is valid: %d stages over %s, peak %d VUs, %d requests per iteration\n",
		output.SuccessIcon(noColor), path, len(sched.Stages()), sched.TotalDuration(),
		sched.MaxTarget(), len(cfg.Scenario.Requests))
	return nil
}
