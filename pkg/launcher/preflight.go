package launcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/types"
)

// PreflightError is a fatal precondition failure with operator guidance.
type PreflightError struct {
	Err         error
	Remediation string
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("%v (%s)", e.Err, e.Remediation)
}

func (e *PreflightError) Unwrap() error { return e.Err }

// PreflightReport is the outcome of a successful preflight.
type PreflightReport struct {
	RuntimePath string

	// GPUAvailable is only meaningful when GPU support was requested.
	GPUAvailable bool
}

// Preflight checks that the runtime binary is installed and its daemon
// answers. With gpu set it also reports whether the nvidia runtime is
// registered; a missing GPU runtime is not an error.
func (l *Launcher) Preflight(ctx context.Context, gpu bool) (*PreflightReport, error) {
	path, err := l.runner.LookPath(l.config.RuntimeBinary)
	if err != nil {
		return nil, &PreflightError{
			Err:         fmt.Errorf("%w: %s", types.ErrRuntimeUnavailable, l.config.RuntimeBinary),
			Remediation: "install Docker Engine and make sure the docker binary is on PATH",
		}
	}

	if err := l.runtime.Ping(ctx); err != nil {
		if !errors.Is(err, types.ErrDaemonUnreachable) {
			err = fmt.Errorf("%w: %v", types.ErrDaemonUnreachable, err)
		}
		return nil, &PreflightError{
			Err:         err,
			Remediation: "start the daemon with 'sudo systemctl start docker' and check that your user may access the socket",
		}
	}

	report := &PreflightReport{RuntimePath: path}
	if gpu {
		ok, err := l.runtime.HasRuntime(ctx, "nvidia")
		if err != nil {
			l.logger.Warn("Could not query daemon runtimes", log.Err(err))
		}
		report.GPUAvailable = ok
	}
	return report, nil
}
