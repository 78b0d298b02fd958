package probes

import (
	"context"
	"fmt"
	"time"

	"github.com/rzbill/hoist/pkg/runtime/docker"
)

// ContainerInspector returns the state of a container by exact ID or name.
type ContainerInspector interface {
	Inspect(ctx context.Context, idOrName string) (*docker.ContainerInfo, error)
}

// ContainerProber succeeds when the target container exists and is running.
type ContainerProber struct {
	inspector ContainerInspector
}

// NewContainerProber returns a ContainerProber over inspector.
func NewContainerProber(inspector ContainerInspector) *ContainerProber {
	return &ContainerProber{inspector: inspector}
}

// Execute implements the Prober interface.
func (p *ContainerProber) Execute(ctx *ProbeContext) ProbeResult {
	start := time.Now()
	if ctx.Target.Container == "" {
		return failure(start, "no container identity to check")
	}

	info, err := p.inspector.Inspect(ctx.Ctx, ctx.Target.Container)
	if err != nil {
		return failure(start, "%v", err)
	}
	if !info.Running {
		return failure(start, "container %s is %s", info.Name, info.Status)
	}
	return ProbeResult{
		Success:  true,
		Message:  fmt.Sprintf("container %s is running", info.Name),
		Duration: time.Since(start),
	}
}
