package launcher

import (
	"context"
	"fmt"

	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/probes"
	"github.com/rzbill/hoist/pkg/types"
)

// WaitReady waits the settle delay, then checks that the exact container id
// is running every poll interval until it is or the ready timeout passes.
// It returns the number of checks made.
func (l *Launcher) WaitReady(ctx context.Context, id string) (int, error) {
	prober := probes.NewContainerProber(l.runtime)
	pctx := &probes.ProbeContext{Ctx: ctx, Logger: l.logger, Target: probes.Target{Container: id}}

	if err := l.sleep(ctx, l.config.SettleDelay); err != nil {
		return 0, err
	}

	deadline := l.now().Add(l.config.ReadyTimeout)
	checks := 0
	for {
		checks++
		res := prober.Execute(pctx)
		if res.Success {
			return checks, nil
		}
		l.logger.Debug("Service not ready yet", log.Int("check", checks), log.Str("reason", res.Message))

		if !l.now().Before(deadline) {
			return checks, fmt.Errorf("%w: %s after %s: %s", types.ErrReadinessTimeout, id, l.config.ReadyTimeout, res.Message)
		}
		if err := l.sleep(ctx, l.config.PollInterval); err != nil {
			return checks, err
		}
	}
}
