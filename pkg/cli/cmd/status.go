package cmd

import (
	"os"

	"github.com/rzbill/hoist/pkg/cli/format"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/runtime/docker"
	"github.com/rzbill/hoist/pkg/types"
	"github.com/spf13/cobra"
)

var (
	statusAll     bool
	statusHistory bool
)

var statusCmd = &cobra.Command{
	Use:   "status [service]",
	Short: "Show journaled deployment state",
	Long: `Show the journaled state of each service, joined with live container
status when the runtime is reachable. With --history, show every recorded
transition of one service.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVarP(&statusAll, "all", "A", false, "Show every environment")
	statusCmd.Flags().BoolVar(&statusHistory, "history", false, "Show the transition history of the service")
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	if statusHistory {
		svc, err := findService(serviceArg(args))
		if err != nil {
			return err
		}
		versions, err := st.GetHistory(ctx, cfg.Environment.Name, svc.Name)
		if err != nil {
			return err
		}
		return format.RenderHistory(os.Stdout, versions)
	}

	env := cfg.Environment.Name
	if statusAll {
		env = ""
	}
	deployments, err := st.List(ctx, env)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		filtered := deployments[:0]
		for _, d := range deployments {
			if d.Service == args[0] {
				filtered = append(filtered, d)
			}
		}
		deployments = filtered
	}

	live := make(map[string]*docker.ContainerInfo)
	containers, err := a.engine.ListManaged(ctx, env)
	if err != nil {
		logger.Debug("Live status unavailable", log.Err(err))
	}
	for _, c := range containers {
		live[format.LiveKey(c.Labels[types.LabelEnvironment], c.Labels[types.LabelService])] = c
	}
	return format.RenderDeployments(os.Stdout, deployments, live)
}
