package cmd

import (
	"fmt"
	"time"

	"github.com/rzbill/hoist/pkg/cli/format"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/provision"
	"github.com/spf13/cobra"
)

var (
	setupNvidia            bool
	setupSkipConfirmations bool
	setupContinue          bool
	setupFailOnError       bool
)

// setupCmd runs the whole bootstrap sequence
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Generate credentials, launch the service and verify it",
	Long: `Run the full bootstrap for the configured environment:

  1. credentials  generate and hash the admin credential (reused if present)
  2. network      create the shared network if it does not exist
  3. launch       start the service and wait until it is running
  4. companions   start companion services (optional)
  5. verify       run the verification checklist (optional)

A failure in a mandatory step stops the run with exit code 1.`,
	Example: `  # Fresh install
  hoist setup

  # With NVIDIA GPU support, never prompting
  hoist setup --nvidia --skip-confirmations

  # Resume an interrupted run
  hoist setup --continue`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
	setupCmd.Flags().BoolVar(&setupNvidia, "nvidia", false, "Give the service access to NVIDIA GPUs")
	setupCmd.Flags().BoolVar(&setupSkipConfirmations, "skip-confirmations", false, "Answer yes to every prompt")
	setupCmd.Flags().BoolVar(&setupContinue, "continue", false, "Resume the last run, skipping completed steps")
	setupCmd.Flags().BoolVar(&setupFailOnError, "fail-on-error", false, "Exit non-zero when verification reports failures")
}

func runSetup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.journal()
	if err != nil {
		return err
	}
	boot, err := a.bootstrapper()
	if err != nil {
		return err
	}

	p := provision.New(&cfg.Environment, &cfg.Service, cfg.Companions, provision.Dependencies{
		Credentials: boot,
		Launcher:    a.launcher(),
		Verifier:    a.verifier(),
		Store:       st,
		Confirmer:   provision.NewPromptConfirmer(),
		Logger:      logger,
	})

	fmt.Fprintf(printer.Out, "Setting up %s in environment %s\n", format.Highlight(cfg.Service.Name), format.Highlight(cfg.Environment.Name))
	summary, runErr := p.Run(ctx, provision.Options{
		GPU:               setupNvidia,
		SkipConfirmations: setupSkipConfirmations,
		Continue:          setupContinue,
		FailOnVerify:      setupFailOnError,
	})
	if summary != nil {
		printSummary(summary)
	}
	return runErr
}

func printSummary(s *provision.Summary) {
	for _, step := range s.Steps {
		switch {
		case step.Skipped:
			printer.Info("%s: already completed", step.Name)
		case step.Err != nil:
			// Optional failures are in Warnings; a mandatory one is returned.
		default:
			printer.Success("%s (%s)", step.Name, step.Duration.Round(time.Millisecond))
		}
	}

	if c := s.Credentials; c != nil {
		state := "generated"
		if c.Reused {
			state = "reused"
		}
		printer.Info("Credentials %s with %s", state, c.Method)
		fmt.Fprintln(printer.Out, "  "+format.Label("plaintext", c.PlaintextPath))
		fmt.Fprintln(printer.Out, "  "+format.Label("hash", c.HashPath))
	}
	for _, w := range s.Warnings {
		printer.Warning("%s", w)
	}
	if l := s.Launch; l != nil && l.ContainerID != "" {
		fmt.Fprintln(printer.Out, "  "+format.Label("container", l.ContainerID))
		fmt.Fprintln(printer.Out, "  "+format.Label("mechanism", l.Mechanism))
	}
	if s.Report != nil {
		fmt.Fprintln(printer.Out)
		if err := format.RenderReport(printer.Out, s.Report); err != nil {
			logger.Debug("Failed to render report", log.Err(err))
		}
	}
}
