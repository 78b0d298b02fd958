// Package launcher starts a service container on a shared network and
// waits until it is running.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/runtime/command"
	"github.com/rzbill/hoist/pkg/runtime/docker"
	"github.com/rzbill/hoist/pkg/types"
)

// Runtime is the container engine surface the launcher needs.
type Runtime interface {
	Ping(ctx context.Context) error
	HasRuntime(ctx context.Context, name string) (bool, error)
	FindNetwork(ctx context.Context, name string) (string, bool, error)
	CreateNetwork(ctx context.Context, name string, labels map[string]string) (string, error)
	FindContainer(ctx context.Context, name string) (*docker.ContainerInfo, error)
	Inspect(ctx context.Context, idOrName string) (*docker.ContainerInfo, error)
	CreateAndStart(ctx context.Context, run docker.ServiceRun) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string, timeout time.Duration) error
	Restart(ctx context.Context, id string, timeout time.Duration) error
	Logs(ctx context.Context, id string, opts docker.LogOptions, stdout, stderr io.Writer) error
}

var _ Runtime = (*docker.Engine)(nil)

// Mechanism names.
const (
	MechanismAuto    = "auto"
	MechanismCompose = "compose"
	MechanismDirect  = "direct"
)

// Config controls how services are launched.
type Config struct {
	// Mechanism is auto, compose or direct.
	Mechanism string `mapstructure:"mechanism"`

	// RuntimeBinary is the CLI checked during preflight.
	RuntimeBinary string `mapstructure:"runtime_binary"`

	// ComposeCommand invokes compose, e.g. ["docker", "compose"].
	ComposeCommand []string `mapstructure:"compose_command"`

	SettleDelay  time.Duration `mapstructure:"settle_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout"`
}

// DefaultConfig returns the launcher defaults.
func DefaultConfig() Config {
	return Config{
		Mechanism:      MechanismAuto,
		RuntimeBinary:  "docker",
		ComposeCommand: []string{"docker", "compose"},
		SettleDelay:    2 * time.Second,
		PollInterval:   2 * time.Second,
		ReadyTimeout:   60 * time.Second,
		StopTimeout:    10 * time.Second,
	}
}

// LaunchOptions carries per-launch inputs.
type LaunchOptions struct {
	// Hash is appended to the command after the service's credential flag.
	Hash string

	// HashPath is where wrapper scripts read the hash from at run time.
	HashPath string

	// GPU requests all NVIDIA devices.
	GPU bool
}

// LaunchResult describes a launched service.
type LaunchResult struct {
	ContainerID string
	Mechanism   string

	// Started is false when the container was already running.
	Started bool

	// Checks is how many readiness checks ran.
	Checks int
}

// Launcher starts services.
type Launcher struct {
	runtime Runtime
	runner  command.Runner
	config  Config
	logger  log.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New returns a Launcher.
func New(runtime Runtime, runner command.Runner, config Config, logger log.Logger) *Launcher {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	defaults := DefaultConfig()
	if config.Mechanism == "" {
		config.Mechanism = defaults.Mechanism
	}
	if config.RuntimeBinary == "" {
		config.RuntimeBinary = defaults.RuntimeBinary
	}
	if len(config.ComposeCommand) == 0 {
		config.ComposeCommand = defaults.ComposeCommand
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.ReadyTimeout <= 0 {
		config.ReadyTimeout = defaults.ReadyTimeout
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = defaults.StopTimeout
	}
	return &Launcher{
		runtime: runtime,
		runner:  runner,
		config:  config,
		logger:  logger.WithComponent("launcher"),
		sleep:   sleepContext,
		now:     time.Now,
	}
}

// Launch brings svc up in env and waits for readiness. A container that is
// already running is left alone; a stopped one is started again.
func (l *Launcher) Launch(ctx context.Context, env *types.Environment, svc *types.ServiceSpec, opts LaunchOptions) (*LaunchResult, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	if err := svc.Validate(); err != nil {
		return nil, err
	}

	paths := env.Artifacts(svc.Name)
	if err := os.MkdirAll(paths.Data, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	mech, err := l.SelectMechanism(ctx)
	if err != nil {
		return nil, err
	}
	run := buildRun(env, svc, opts)
	logger := l.logger.With(log.Environment(env.Name), log.Service(svc.Name), log.Str("mechanism", mech.Name()))

	res := &LaunchResult{Mechanism: mech.Name()}
	existing, err := l.runtime.FindContainer(ctx, svc.Name)
	switch {
	case err == nil && existing.Running:
		logger.Info("Service already running", log.Str("container_id", existing.ID))
		res.ContainerID = existing.ID
	case err == nil:
		logger.Info("Starting existing service container", log.Str("container_id", existing.ID))
		if err := l.runtime.Start(ctx, existing.ID); err != nil {
			return nil, err
		}
		res.ContainerID = existing.ID
		res.Started = true
	case errors.Is(err, types.ErrServiceNotFound):
		id, err := mech.Up(ctx, env, run)
		if err != nil {
			return nil, err
		}
		res.ContainerID = id
		res.Started = true
	default:
		return nil, err
	}

	hashPath := ""
	if svc.CredentialFlag != "" && opts.Hash != "" {
		hashPath = opts.HashPath
	}
	if err := mech.WriteScripts(env, run, hashPath); err != nil {
		return nil, fmt.Errorf("failed to write wrapper scripts: %w", err)
	}

	checks, err := l.WaitReady(ctx, res.ContainerID)
	res.Checks = checks
	if err != nil {
		return res, err
	}
	logger.Info("Service is running", log.Str("container_id", res.ContainerID), log.Int("checks", checks))
	return res, nil
}

// buildRun resolves svc into a concrete container definition.
func buildRun(env *types.Environment, svc *types.ServiceSpec, opts LaunchOptions) docker.ServiceRun {
	dir := env.Artifacts(svc.Name).Dir
	mounts := make([]types.VolumeMount, 0, len(svc.Volumes))
	for _, v := range svc.Volumes {
		src := v.Source
		if !filepath.IsAbs(src) {
			src = filepath.Join(dir, src)
		}
		mounts = append(mounts, types.VolumeMount{Source: src, Target: v.Target, ReadOnly: v.ReadOnly})
	}

	env2 := make(map[string]string, len(svc.Env))
	for k, v := range svc.Env {
		env2[k] = v
	}

	return docker.ServiceRun{
		Name:          svc.Name,
		Image:         svc.Image,
		Cmd:           svc.Args(opts.Hash),
		Env:           env2,
		Labels:        env.Labels(svc.Name),
		Ports:         svc.Ports,
		Mounts:        mounts,
		Network:       env.Network,
		RestartPolicy: svc.Restart(),
		GPU:           opts.GPU || svc.GPU,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
