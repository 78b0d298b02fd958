package launcher

import (
	"context"
	"fmt"

	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/runtime/docker"
	"github.com/rzbill/hoist/pkg/types"
)

// Mechanism is one way of bringing a container up. Both mechanisms produce
// the same container; they differ only in tooling.
type Mechanism interface {
	Name() string

	// Up creates and starts the container and returns its ID.
	Up(ctx context.Context, env *types.Environment, run docker.ServiceRun) (string, error)

	// WriteScripts emits the start/stop/restart/logs wrappers.
	WriteScripts(env *types.Environment, run docker.ServiceRun, hashPath string) error
}

// ComposeAvailable reports whether the compose plugin answers.
func (l *Launcher) ComposeAvailable(ctx context.Context) bool {
	if _, err := l.runner.LookPath(l.config.ComposeCommand[0]); err != nil {
		return false
	}
	args := append(append([]string{}, l.config.ComposeCommand[1:]...), "version")
	_, err := l.runner.Output(ctx, nil, l.config.ComposeCommand[0], args...)
	return err == nil
}

// SelectMechanism picks the configured mechanism. auto prefers compose when
// it is installed and falls back to direct.
func (l *Launcher) SelectMechanism(ctx context.Context) (Mechanism, error) {
	switch l.config.Mechanism {
	case MechanismCompose:
		if !l.ComposeAvailable(ctx) {
			return nil, fmt.Errorf("compose mechanism requested but %v is not available", l.config.ComposeCommand)
		}
		return l.compose(), nil
	case MechanismDirect:
		return l.direct(), nil
	case MechanismAuto, "":
		if l.ComposeAvailable(ctx) {
			return l.compose(), nil
		}
		l.logger.Debug("Compose not available, using direct container run")
		return l.direct(), nil
	default:
		return nil, fmt.Errorf("unknown launch mechanism: %s", l.config.Mechanism)
	}
}

func (l *Launcher) compose() *composeMechanism {
	return &composeMechanism{
		runner:  l.runner,
		runtime: l.runtime,
		command: l.config.ComposeCommand,
		logger:  l.logger.With(log.Str("mechanism", MechanismCompose)),
	}
}

func (l *Launcher) direct() *directMechanism {
	return &directMechanism{
		runtime: l.runtime,
		binary:  l.config.RuntimeBinary,
	}
}
