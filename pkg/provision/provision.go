// Package provision runs the ordered setup of one environment: credentials,
// network, service launch, companions and verification. Progress is
// journaled so an interrupted run can be resumed with Continue.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rzbill/hoist/pkg/credentials"
	"github.com/rzbill/hoist/pkg/launcher"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/store"
	"github.com/rzbill/hoist/pkg/types"
	"github.com/rzbill/hoist/pkg/verify"
)

// Step names, in execution order.
const (
	StepCredentials = "credentials"
	StepNetwork     = "network"
	StepLaunch      = "launch"
	StepCompanions  = "companions"
	StepVerify      = "verify"
)

var (
	// ErrStepFailed wraps the error of a mandatory step.
	ErrStepFailed = errors.New("mandatory step failed")

	// ErrAborted is returned when the operator declines to continue.
	ErrAborted = errors.New("setup aborted by operator")
)

// CredentialEnsurer produces the credential artifacts.
type CredentialEnsurer interface {
	Ensure(ctx context.Context, paths types.ArtifactPaths) (*credentials.Result, error)
}

// ServiceLauncher brings containers up.
type ServiceLauncher interface {
	Preflight(ctx context.Context, gpu bool) (*launcher.PreflightReport, error)
	EnsureNetwork(ctx context.Context, env *types.Environment) (bool, error)
	Launch(ctx context.Context, env *types.Environment, svc *types.ServiceSpec, opts launcher.LaunchOptions) (*launcher.LaunchResult, error)
}

// Verifier checks a deployment.
type Verifier interface {
	Verify(ctx context.Context, env *types.Environment, svc *types.ServiceSpec) *verify.Report
}

var (
	_ CredentialEnsurer = (*credentials.Bootstrapper)(nil)
	_ ServiceLauncher   = (*launcher.Launcher)(nil)
	_ Verifier          = (*verify.Verifier)(nil)
)

// Dependencies are the collaborators a Provisioner drives.
type Dependencies struct {
	Credentials CredentialEnsurer
	Launcher    ServiceLauncher
	Verifier    Verifier
	Store       store.Store
	Confirmer   Confirmer
	Logger      log.Logger
}

// Options are the per-run flags.
type Options struct {
	// GPU requests NVIDIA devices for the main service.
	GPU bool

	// SkipConfirmations answers every prompt with yes.
	SkipConfirmations bool

	// Continue resumes the last journaled run, skipping completed steps.
	Continue bool

	// FailOnVerify makes the verify step mandatory.
	FailOnVerify bool
}

// StepOutcome records what happened to one step.
type StepOutcome struct {
	Name     string
	Optional bool
	Skipped  bool
	Err      error
	Duration time.Duration
}

// Summary is the result of a run.
type Summary struct {
	RunID       string
	Deployment  *types.Deployment
	Credentials *credentials.Result
	Launch      *launcher.LaunchResult
	Companions  map[string]*launcher.LaunchResult
	Report      *verify.Report
	Steps       []StepOutcome
	Warnings    []string
}

// Provisioner runs the setup steps for one service and its companions.
type Provisioner struct {
	env        *types.Environment
	service    *types.ServiceSpec
	companions []types.ServiceSpec
	deps       Dependencies
	logger     log.Logger
}

// New returns a Provisioner.
func New(env *types.Environment, service *types.ServiceSpec, companions []types.ServiceSpec, deps Dependencies) *Provisioner {
	logger := deps.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	if deps.Store == nil {
		deps.Store = store.NewMemoryStore()
	}
	if deps.Confirmer == nil {
		deps.Confirmer = NewPromptConfirmer()
	}
	return &Provisioner{
		env:        env,
		service:    service,
		companions: companions,
		deps:       deps,
		logger:     logger.WithComponent("provision").With(log.Environment(env.Name), log.Service(service.Name)),
	}
}

type step struct {
	name     string
	optional bool
	run      func(ctx context.Context, r *runState) error
}

// runState is the mutable state of one Run.
type runState struct {
	opts    Options
	record  *types.Deployment
	summary *Summary
	gpu     bool
	hash    string
}

// Run executes the steps in order. A mandatory step failure stops the run
// and is returned wrapped in ErrStepFailed; an optional step failure is
// logged as a warning and the run continues.
func (p *Provisioner) Run(ctx context.Context, opts Options) (*Summary, error) {
	if err := p.env.Validate(); err != nil {
		return nil, err
	}
	if err := p.service.Validate(); err != nil {
		return nil, err
	}
	for i := range p.companions {
		if err := p.companions[i].Validate(); err != nil {
			return nil, err
		}
	}

	gpu, err := p.preflight(ctx, opts)
	if err != nil {
		return nil, err
	}

	record, err := p.loadRecord(ctx, opts.Continue)
	if err != nil {
		return nil, err
	}
	r := &runState{
		opts:   opts,
		record: record,
		gpu:    gpu,
		summary: &Summary{
			RunID:      record.RunID,
			Deployment: record,
			Companions: make(map[string]*launcher.LaunchResult),
		},
	}
	logger := p.logger.With(log.RunID(record.RunID))
	logger.Info("Starting setup", log.Bool("continue", opts.Continue), log.Bool("gpu", gpu))

	for _, s := range p.steps(opts) {
		if err := ctx.Err(); err != nil {
			return r.summary, err
		}
		outcome := StepOutcome{Name: s.name, Optional: s.optional}
		if opts.Continue && record.StepDone(s.name) {
			outcome.Skipped = true
			r.summary.Steps = append(r.summary.Steps, outcome)
			logger.Info("Skipping completed step", log.Str("step", s.name))
			continue
		}

		start := time.Now()
		err := s.run(ctx, r)
		outcome.Duration = time.Since(start)
		outcome.Err = err
		r.summary.Steps = append(r.summary.Steps, outcome)

		if err != nil {
			if s.optional {
				logger.Warn("Optional step failed, continuing", log.Str("step", s.name), log.Err(err))
				r.summary.Warnings = append(r.summary.Warnings, fmt.Sprintf("%s: %v", s.name, err))
				continue
			}
			logger.Error("Step failed", log.Str("step", s.name), log.Err(err))
			return r.summary, fmt.Errorf("%w: %s: %w", ErrStepFailed, s.name, err)
		}

		record.MarkStep(s.name)
		if err := p.save(ctx, record); err != nil {
			return r.summary, err
		}
		logger.Debug("Step completed", log.Str("step", s.name), log.Duration("duration", outcome.Duration))
	}

	logger.Info("Setup finished", log.Str("state", string(record.State)))
	return r.summary, nil
}

func (p *Provisioner) steps(opts Options) []step {
	return []step{
		{name: StepCredentials, run: p.ensureCredentials},
		{name: StepNetwork, run: p.ensureNetwork},
		{name: StepLaunch, run: p.launchService},
		{name: StepCompanions, optional: true, run: p.launchCompanions},
		{name: StepVerify, optional: !opts.FailOnVerify, run: p.verify},
	}
}

// preflight checks the runtime and resolves whether GPU support stays on.
func (p *Provisioner) preflight(ctx context.Context, opts Options) (bool, error) {
	gpu := opts.GPU || p.service.GPU
	report, err := p.deps.Launcher.Preflight(ctx, gpu)
	if err != nil {
		return false, err
	}
	if !gpu || report.GPUAvailable {
		return gpu, nil
	}

	const question = "NVIDIA container runtime not found. Continue without GPU support?"
	if opts.SkipConfirmations {
		p.logger.Warn("NVIDIA container runtime not found, continuing without GPU support")
		return false, nil
	}
	ok, err := p.deps.Confirmer.Confirm(question)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrAborted
	}
	return false, nil
}

// loadRecord returns the journal record this run writes to. Without resume
// a fresh run ID is issued but the previous state is kept so transitions
// stay valid.
func (p *Provisioner) loadRecord(ctx context.Context, resume bool) (*types.Deployment, error) {
	prev, err := p.deps.Store.Get(ctx, p.env.Name, p.service.Name)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to read deployment journal: %w", err)
	}
	if prev != nil && resume {
		p.logger.Info("Resuming previous run", log.RunID(prev.RunID), log.Int("completed_steps", len(prev.CompletedSteps)))
		return prev, nil
	}
	if resume {
		p.logger.Info("No previous run to continue, starting fresh")
	}

	record := &types.Deployment{
		RunID:       uuid.NewString(),
		Environment: p.env.Name,
		Service:     p.service.Name,
		State:       types.StateUnprovisioned,
	}
	if prev != nil {
		record.State = prev.State
		record.HashMethod = prev.HashMethod
		record.Degraded = prev.Degraded
		// A run interrupted mid-launch never reached a terminal state.
		if record.State == types.StateServiceStarting {
			record.State = types.StateServiceFailed
			record.Message = "previous run was interrupted"
		}
	}
	return record, nil
}

func (p *Provisioner) save(ctx context.Context, d *types.Deployment) error {
	if err := p.deps.Store.Put(ctx, d); err != nil {
		return fmt.Errorf("failed to journal deployment: %w", err)
	}
	return nil
}

func (p *Provisioner) transition(ctx context.Context, d *types.Deployment, to types.DeploymentState, msg string) error {
	if err := d.Transition(to, msg); err != nil {
		return err
	}
	return p.save(ctx, d)
}
