package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/rzbill/hoist/pkg/credentials"
	"github.com/rzbill/hoist/pkg/launcher"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/types"
)

func (p *Provisioner) ensureCredentials(ctx context.Context, r *runState) error {
	if p.service.CredentialFlag == "" {
		p.logger.Debug("Service takes no credential")
		return p.transition(ctx, r.record, types.StateCredentialsReady, "no credential required")
	}

	res, err := p.deps.Credentials.Ensure(ctx, p.env.Artifacts(p.service.Name))
	if err != nil {
		return err
	}
	r.summary.Credentials = res
	r.hash = res.Hash

	// A reused hash keeps the method recorded when it was produced.
	if !res.Reused || r.record.HashMethod == "" {
		r.record.HashMethod = res.Method
	}
	r.record.Degraded = res.Degraded
	r.summary.Warnings = append(r.summary.Warnings, res.Warnings...)
	if res.Degraded {
		r.summary.Warnings = append(r.summary.Warnings,
			"credential hash is an insecure placeholder; rotate it with 'hoist credentials rotate' once a hasher is available")
	}

	msg := "credentials generated"
	if res.Reused {
		msg = "credentials reused"
	}
	return p.transition(ctx, r.record, types.StateCredentialsReady, msg)
}

func (p *Provisioner) ensureNetwork(ctx context.Context, r *runState) error {
	created, err := p.deps.Launcher.EnsureNetwork(ctx, p.env)
	if err != nil {
		return err
	}
	if created {
		p.logger.Info("Created network", log.Str("network", p.env.Network))
	}
	return nil
}

func (p *Provisioner) launchService(ctx context.Context, r *runState) error {
	paths := p.env.Artifacts(p.service.Name)
	hash := r.hash
	if hash == "" && p.service.CredentialFlag != "" {
		// Resumed run: the credentials step was skipped.
		h, err := credentials.ReadHash(paths)
		if err != nil {
			return err
		}
		if h == "" {
			return fmt.Errorf("no credential hash at %s; re-run without --continue", paths.Hash)
		}
		hash = h
	}

	if r.record.State != types.StateServiceStarting {
		if err := p.transition(ctx, r.record, types.StateServiceStarting, "launching"); err != nil {
			return err
		}
	}

	svc := *p.service
	svc.GPU = r.gpu
	res, err := p.deps.Launcher.Launch(ctx, p.env, &svc, launcher.LaunchOptions{
		Hash:     hash,
		HashPath: paths.Hash,
		GPU:      r.gpu,
	})
	r.summary.Launch = res
	if res != nil {
		r.record.ContainerID = res.ContainerID
		r.record.Mechanism = res.Mechanism
	}
	if err != nil {
		if terr := p.transition(context.WithoutCancel(ctx), r.record, types.StateServiceFailed, err.Error()); terr != nil {
			p.logger.Warn("Failed to journal launch failure", log.Err(terr))
		}
		return err
	}
	return p.transition(ctx, r.record, types.StateServiceRunning, "service running")
}

// launchCompanions starts each companion on the same network. Companions
// never receive the credential.
func (p *Provisioner) launchCompanions(ctx context.Context, r *runState) error {
	var errs []error
	for i := range p.companions {
		c := p.companions[i]
		res, err := p.deps.Launcher.Launch(ctx, p.env, &c, launcher.LaunchOptions{})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		r.summary.Companions[c.Name] = res
		p.logger.Info("Companion running", log.Str("companion", c.Name), log.Str("container_id", res.ContainerID))
	}
	return errors.Join(errs...)
}

func (p *Provisioner) verify(ctx context.Context, r *runState) error {
	report := p.deps.Verifier.Verify(ctx, p.env, p.service)
	r.summary.Report = report
	if !report.OK() {
		return fmt.Errorf("%d of %d checks failed", report.Failed(), len(report.Checks))
	}
	return nil
}
