package launcher

import (
	"context"

	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/types"
)

// EnsureNetwork creates env's network unless one with that exact name
// exists. It reports whether a network was created. Networks are never
// deleted by hoist.
func (l *Launcher) EnsureNetwork(ctx context.Context, env *types.Environment) (bool, error) {
	id, found, err := l.runtime.FindNetwork(ctx, env.Network)
	if err != nil {
		return false, err
	}
	if found {
		l.logger.Debug("Network already exists", log.Str("network", env.Network), log.Str("network_id", id))
		return false, nil
	}
	if _, err := l.runtime.CreateNetwork(ctx, env.Network, env.Labels("")); err != nil {
		return false, err
	}
	return true, nil
}
