package cmd

import (
	"context"
	"fmt"

	"github.com/rzbill/hoist/pkg/cli/format"
	"github.com/rzbill/hoist/pkg/credentials"
	"github.com/rzbill/hoist/pkg/launcher"
	"github.com/rzbill/hoist/pkg/store"
	"github.com/rzbill/hoist/pkg/types"
	"github.com/spf13/cobra"
)

var (
	launchNvidia     bool
	launchCompanions bool
)

// launchCmd starts the service from existing credentials
var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Ensure the network and launch the service",
	Long: `Launch the configured service using the credential already on disk.
The network is created when missing; a running container is left alone and a
stopped one is started again.`,
	Args: cobra.NoArgs,
	RunE: runLaunch,
}

func init() {
	rootCmd.AddCommand(launchCmd)
	launchCmd.Flags().BoolVar(&launchNvidia, "nvidia", false, "Give the service access to NVIDIA GPUs")
	launchCmd.Flags().BoolVar(&launchCompanions, "companions", true, "Also launch companion services")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, jerr := a.journal()
	if jerr != nil {
		printer.Warning("journal unavailable: %v", jerr)
	}
	return launchConfigured(ctx, a.launcher(), st)
}

// launchConfigured launches the main service and, unless disabled, its
// companions. GPU support is wanted when --nvidia is passed or the service
// config asks for it.
func launchConfigured(ctx context.Context, l *launcher.Launcher, st store.Store) error {
	want := launchNvidia || cfg.Service.GPU
	report, err := l.Preflight(ctx, want)
	if err != nil {
		return err
	}
	gpu := want && report.GPUAvailable
	if want && !gpu {
		printer.Warning("NVIDIA container runtime not found, launching without GPU support")
	}

	paths := cfg.ArtifactPaths()
	var hash string
	if cfg.Service.CredentialFlag != "" {
		if hash, err = credentials.ReadHash(paths); err != nil {
			return err
		}
		if hash == "" {
			return fmt.Errorf("no credential at %s; run 'hoist credentials ensure' first", paths.Hash)
		}
	}

	created, err := l.EnsureNetwork(ctx, &cfg.Environment)
	if err != nil {
		return err
	}
	if created {
		printer.Success("Created network %s", cfg.Environment.Network)
	}

	record(ctx, st, cfg.Service.Name, types.StateServiceStarting, "launching", nil)

	svc := cfg.Service
	svc.GPU = gpu
	res, err := l.Launch(ctx, &cfg.Environment, &svc, launcher.LaunchOptions{Hash: hash, HashPath: paths.Hash, GPU: gpu})
	if err != nil {
		record(ctx, st, cfg.Service.Name, types.StateServiceFailed, err.Error(), func(d *types.Deployment) {
			if res != nil {
				d.ContainerID = res.ContainerID
			}
		})
		return err
	}
	record(ctx, st, cfg.Service.Name, types.StateServiceRunning, "service running", func(d *types.Deployment) {
		d.ContainerID = res.ContainerID
		d.Mechanism = res.Mechanism
	})
	printer.Success("%s running (%s, %s)", format.Highlight(svc.Name), shortContainerID(res.ContainerID), res.Mechanism)

	if !launchCompanions {
		return nil
	}
	for i := range cfg.Companions {
		c := cfg.Companions[i]
		cres, err := l.Launch(ctx, &cfg.Environment, &c, launcher.LaunchOptions{})
		if err != nil {
			printer.Warning("companion %s: %v", c.Name, err)
			continue
		}
		printer.Success("%s running (%s)", format.Highlight(c.Name), shortContainerID(cres.ContainerID))
	}
	return nil
}

func shortContainerID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
