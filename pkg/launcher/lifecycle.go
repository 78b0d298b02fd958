package launcher

import (
	"context"
	"fmt"
	"io"

	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/runtime/docker"
)

// Start starts the existing container of service and waits for readiness.
func (l *Launcher) Start(ctx context.Context, service string) (int, error) {
	info, err := l.runtime.FindContainer(ctx, service)
	if err != nil {
		return 0, fmt.Errorf("%w; run 'hoist launch' first", err)
	}
	if !info.Running {
		if err := l.runtime.Start(ctx, info.ID); err != nil {
			return 0, err
		}
	}
	return l.WaitReady(ctx, info.ID)
}

// Stop stops service. A missing or stopped container is not an error.
func (l *Launcher) Stop(ctx context.Context, service string) error {
	info, err := l.runtime.FindContainer(ctx, service)
	if err != nil {
		l.logger.Debug("Nothing to stop", log.Service(service), log.Err(err))
		return nil
	}
	return l.runtime.Stop(ctx, info.ID, l.config.StopTimeout)
}

// Restart stops then starts service, re-entering readiness polling.
func (l *Launcher) Restart(ctx context.Context, service string) (int, error) {
	if err := l.Stop(ctx, service); err != nil {
		return 0, err
	}
	return l.Start(ctx, service)
}

// Logs streams the service's logs.
func (l *Launcher) Logs(ctx context.Context, service string, opts docker.LogOptions, stdout, stderr io.Writer) error {
	info, err := l.runtime.FindContainer(ctx, service)
	if err != nil {
		return err
	}
	return l.runtime.Logs(ctx, info.ID, opts, stdout, stderr)
}

// Status returns the observed state of service, or types.ErrServiceNotFound.
func (l *Launcher) Status(ctx context.Context, service string) (*docker.ContainerInfo, error) {
	info, err := l.runtime.FindContainer(ctx, service)
	if err != nil {
		return nil, err
	}
	return info, nil
}
