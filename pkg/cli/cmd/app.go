package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rzbill/hoist/pkg/credentials"
	"github.com/rzbill/hoist/pkg/launcher"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/runtime/command"
	"github.com/rzbill/hoist/pkg/runtime/docker"
	"github.com/rzbill/hoist/pkg/store"
	"github.com/rzbill/hoist/pkg/types"
	"github.com/rzbill/hoist/pkg/verify"
)

// app wires the collaborators a command needs from the loaded config.
type app struct {
	engine *docker.Engine
	runner command.Runner
	store  store.Store
}

func newApp(ctx context.Context) (*app, error) {
	engine, err := docker.NewEngine(ctx, logger, &cfg.Docker)
	if err != nil {
		return nil, err
	}
	return &app{engine: engine, runner: command.NewExecRunner()}, nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warn("Failed to close journal", log.Err(err))
		}
	}
	if a.engine != nil {
		_ = a.engine.Close()
	}
}

func (a *app) launcher() *launcher.Launcher {
	return launcher.New(a.engine, a.runner, cfg.Launcher, logger)
}

func (a *app) verifier() *verify.Verifier {
	vc := cfg.Verify
	if vc.RuntimeBinary == "" {
		vc.RuntimeBinary = cfg.Launcher.RuntimeBinary
	}
	return verify.New(a.engine, a.runner, vc, logger)
}

func (a *app) bootstrapper() (*credentials.Bootstrapper, error) {
	chain, err := credentials.BuildChain(cfg.Credentials.ChainConfig(), a.runner, a.engine, logger)
	if err != nil {
		return nil, err
	}
	return credentials.New(chain, credentials.Options{
		Username:     cfg.Credentials.Username,
		SecretLength: cfg.Credentials.SecretLength,
		Strict:       cfg.Credentials.Strict(),
		Logger:       logger,
	}), nil
}

// journal opens the deployment journal on first use.
func (a *app) journal() (store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	var st store.Store
	switch cfg.State.Backend {
	case "memory":
		st = store.NewMemoryStore()
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.State.Path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		st = store.NewBadgerStore(logger)
	}
	if err := st.Open(cfg.State.Path); err != nil {
		return nil, err
	}
	a.store = st
	return st, nil
}

// findService resolves name against the main service and companions.
// An empty name means the main service.
func findService(name string) (*types.ServiceSpec, error) {
	if name == "" || name == cfg.Service.Name {
		return &cfg.Service, nil
	}
	for i := range cfg.Companions {
		if cfg.Companions[i].Name == name {
			return &cfg.Companions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q is not configured", types.ErrServiceNotFound, name)
}

func serviceArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}
