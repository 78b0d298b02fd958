package cmd

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/store"
	"github.com/rzbill/hoist/pkg/types"
)

// record applies update to the journaled record of service and moves it to
// state when that transition is allowed. The journal is advisory for the
// single-purpose commands: failures are logged, never returned.
func record(ctx context.Context, st store.Store, service string, to types.DeploymentState, msg string, update func(d *types.Deployment)) {
	if st == nil {
		return
	}
	d, err := st.Get(ctx, cfg.Environment.Name, service)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("Failed to read journal", log.Err(err))
			return
		}
		d = &types.Deployment{
			RunID:       uuid.NewString(),
			Environment: cfg.Environment.Name,
			Service:     service,
			State:       types.StateUnprovisioned,
		}
	}
	if update != nil {
		update(d)
	}
	if to != "" {
		if err := d.Transition(to, msg); err != nil {
			logger.Debug("Journal state unchanged", log.Service(service), log.Err(err))
		}
	}
	if err := st.Put(context.WithoutCancel(ctx), d); err != nil {
		logger.Warn("Failed to write journal", log.Err(err))
	}
}
