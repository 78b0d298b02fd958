package cmd

import (
	"context"
	"fmt"

	"github.com/rzbill/hoist/pkg/cli/format"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/verify"
	"github.com/spf13/cobra"
)

var (
	verifyFailOnError bool
	verifySchedule    string
)

// verifyCmd runs the read-only checklist
var verifyCmd = &cobra.Command{
	Use:   "verify [service]",
	Short: "Check that the deployment is healthy",
	Long: `Run the verification checklist: runtime installed, daemon reachable,
service container running, HTTP endpoint answering and artifacts present.

Failures are reported as warnings; the exit code only changes with
--fail-on-error. Nothing is ever repaired.`,
	Example: `  hoist verify
  hoist verify --fail-on-error
  hoist verify --schedule "*/15 * * * *"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyFailOnError, "fail-on-error", false, "Exit with code 1 when any check fails")
	verifyCmd.Flags().StringVar(&verifySchedule, "schedule", "", "Re-run on a cron schedule until interrupted")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := findService(serviceArg(args))
	if err != nil {
		return err
	}
	if verifySchedule != "" {
		if err := verify.ValidateSchedule(verifySchedule); err != nil {
			return err
		}
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	v := a.verifier()

	runOnce := func(ctx context.Context) *verify.Report {
		report := v.Verify(ctx, &cfg.Environment, svc)
		fmt.Fprintf(printer.Out, "Verifying %s in %s\n", format.Highlight(svc.Name), format.Highlight(cfg.Environment.Name))
		if err := format.RenderReport(printer.Out, report); err != nil {
			logger.Debug("Failed to render report", log.Err(err))
		}
		if !report.OK() {
			printer.Warning("%d of %d checks failed", report.Failed(), len(report.Checks))
		}
		return report
	}

	if verifySchedule == "" {
		report := runOnce(ctx)
		if verifyFailOnError && !report.OK() {
			printer.Error("verification failed")
			return errReported
		}
		return nil
	}

	printer.Info("Verifying on schedule %q, press Ctrl+C to stop", verifySchedule)
	return verify.Schedule(ctx, verifySchedule, 0, logger, func(ctx context.Context) {
		runOnce(ctx)
	})
}
