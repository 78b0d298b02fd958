package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/pterm/pterm"
	"github.com/rzbill/hoist/pkg/cli/format"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/runtime/docker"
	"github.com/rzbill/hoist/pkg/store"
	"github.com/rzbill/hoist/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	logsFollow     bool
	logsTail       string
	logsTimestamps bool
)

var startCmd = &cobra.Command{
	Use:   "start [service]",
	Short: "Start a stopped service and wait until it is running",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop [service]",
	Short: "Stop a service; stopping a stopped service is not an error",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStop,
}

var restartCmd = &cobra.Command{
	Use:   "restart [service]",
	Short: "Stop then start a service",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRestart,
}

var logsCmd = &cobra.Command{
	Use:   "logs [service]",
	Short: "Show service logs",
	Example: `  hoist logs -f
  hoist logs watchtower --tail 50`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(startCmd, stopCmd, restartCmd, logsCmd)
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output")
	logsCmd.Flags().StringVar(&logsTail, "tail", "all", "Number of lines to show from the end")
	logsCmd.Flags().BoolVarP(&logsTimestamps, "timestamps", "t", false, "Show timestamps")
}

// waitWithSpinner runs wait behind a spinner when stderr is a terminal.
func waitWithSpinner(name string, wait func() (int, error)) (int, error) {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return wait()
	}
	spinner, err := pterm.DefaultSpinner.WithWriter(os.Stderr).WithRemoveWhenDone(true).Start("Waiting for " + name + " to run")
	if err != nil {
		return wait()
	}
	checks, werr := wait()
	_ = spinner.Stop()
	return checks, werr
}

func runStart(cmd *cobra.Command, args []string) error {
	return lifecycle(cmd, args, "start")
}

func runRestart(cmd *cobra.Command, args []string) error {
	return lifecycle(cmd, args, "restart")
}

func lifecycle(cmd *cobra.Command, args []string, action string) error {
	ctx := cmd.Context()
	svc, err := findService(serviceArg(args))
	if err != nil {
		return err
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	l := a.launcher()

	st := mainServiceJournal(a, svc)
	record(ctx, st, svc.Name, types.StateServiceStarting, action, nil)

	checks, err := waitWithSpinner(svc.Name, func() (int, error) {
		if action == "restart" {
			return l.Restart(ctx, svc.Name)
		}
		return l.Start(ctx, svc.Name)
	})
	if err != nil {
		record(ctx, st, svc.Name, types.StateServiceFailed, err.Error(), nil)
		return err
	}
	record(ctx, st, svc.Name, types.StateServiceRunning, "service running", nil)
	printer.Success("%s running after %d check(s)", format.Highlight(svc.Name), checks)
	return nil
}

// mainServiceJournal returns the journal for the main service only;
// companions are not journaled.
func mainServiceJournal(a *app, svc *types.ServiceSpec) store.Store {
	if svc.Name != cfg.Service.Name {
		return nil
	}
	st, err := a.journal()
	if err != nil {
		logger.Warn("Journal unavailable", log.Err(err))
		return nil
	}
	return st
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := findService(serviceArg(args))
	if err != nil {
		return err
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.launcher().Stop(ctx, svc.Name); err != nil {
		return err
	}
	printer.Success("%s stopped", format.Highlight(svc.Name))
	return nil
}

func runLogs(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := findService(serviceArg(args))
	if err != nil {
		return err
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	err = a.launcher().Logs(ctx, svc.Name, docker.LogOptions{
		Follow:     logsFollow,
		Tail:       logsTail,
		Timestamps: logsTimestamps,
	}, os.Stdout, os.Stderr)
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return err
}
