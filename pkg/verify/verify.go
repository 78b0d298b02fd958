// Package verify re-checks a deployment as a read-only checklist. It never
// remediates; a failed item is reported, not acted upon.
package verify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/probes"
	"github.com/rzbill/hoist/pkg/runtime/command"
	"github.com/rzbill/hoist/pkg/runtime/docker"
	"github.com/rzbill/hoist/pkg/types"
)

// Check categories.
const (
	CategoryRuntime   = "runtime"
	CategoryDaemon    = "daemon"
	CategoryService   = "service"
	CategoryEndpoint  = "endpoint"
	CategoryArtifacts = "artifacts"
)

// Status of a single check.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// CheckResult is the outcome of one checklist item.
type CheckResult struct {
	Category string        `json:"category"`
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Message  string        `json:"message"`
	Duration time.Duration `json:"duration"`
}

// Report is the full checklist for one service.
type Report struct {
	Environment string        `json:"environment"`
	Service     string        `json:"service"`
	Checks      []CheckResult `json:"checks"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
}

// Passed returns the number of passing checks.
func (r *Report) Passed() int { return r.count(StatusPass) }

// Failed returns the number of failing checks.
func (r *Report) Failed() int { return r.count(StatusFail) }

// Skipped returns the number of checks that did not apply.
func (r *Report) Skipped() int { return r.count(StatusSkip) }

// OK reports whether no check failed.
func (r *Report) OK() bool { return r.Failed() == 0 }

func (r *Report) count(s Status) int {
	n := 0
	for _, c := range r.Checks {
		if c.Status == s {
			n++
		}
	}
	return n
}

// Runtime is the read-only part of the container engine the verifier needs.
type Runtime interface {
	Ping(ctx context.Context) error
	FindContainer(ctx context.Context, name string) (*docker.ContainerInfo, error)
	Inspect(ctx context.Context, idOrName string) (*docker.ContainerInfo, error)
}

var _ Runtime = (*docker.Engine)(nil)

// Config holds verifier settings.
type Config struct {
	RuntimeBinary string        `mapstructure:"runtime_binary"`
	Host          string        `mapstructure:"host"`
	HTTPTimeout   time.Duration `mapstructure:"http_timeout"`
	InsecureTLS   bool          `mapstructure:"insecure_tls"`

	// RequireCredentials includes the credential artifacts in the checklist.
	RequireCredentials bool `mapstructure:"require_credentials"`
}

// DefaultConfig returns the default verifier settings.
func DefaultConfig() Config {
	return Config{
		RuntimeBinary:      "docker",
		Host:               "localhost",
		HTTPTimeout:        probes.DefaultHTTPTimeout,
		InsecureTLS:        true,
		RequireCredentials: true,
	}
}

// Verifier runs the checklist.
type Verifier struct {
	runtime Runtime
	runner  command.Runner
	config  Config
	logger  log.Logger

	httpProber      probes.Prober
	tcpProber       probes.Prober
	containerProber probes.Prober
	probeBase       probes.ProbeContext
}

// New returns a Verifier.
func New(runtime Runtime, runner command.Runner, config Config, logger log.Logger) *Verifier {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	if config.RuntimeBinary == "" {
		config.RuntimeBinary = "docker"
	}
	if config.Host == "" {
		config.Host = "localhost"
	}
	return &Verifier{
		runtime:         runtime,
		runner:          runner,
		config:          config,
		logger:          logger.WithComponent("verify"),
		httpProber:      &probes.HTTPProber{},
		tcpProber:       &probes.TCPProber{},
		containerProber: probes.NewContainerProber(runtime),
		probeBase: probes.ProbeContext{
			HTTPClient: probes.NewHTTPClient(config.HTTPTimeout, config.InsecureTLS),
		},
	}
}

// Verify runs every check for svc in env. Each check is independent: a
// failure never short-circuits the rest.
func (v *Verifier) Verify(ctx context.Context, env *types.Environment, svc *types.ServiceSpec) *Report {
	report := &Report{Environment: env.Name, Service: svc.Name, StartedAt: time.Now()}
	add := func(c CheckResult) {
		report.Checks = append(report.Checks, c)
		fields := []log.Field{log.Str("check", c.Name), log.Str("status", string(c.Status))}
		if c.Status == StatusFail {
			v.logger.Debug("Check failed", append(fields, log.Str("reason", c.Message))...)
		} else {
			v.logger.Debug("Check completed", fields...)
		}
	}

	add(v.checkRuntimeBinary())
	add(v.checkDaemon(ctx))
	add(v.checkService(ctx, svc))
	add(v.checkEndpoint(ctx, svc))
	for _, c := range v.checkArtifacts(env, svc) {
		add(c)
	}

	report.Duration = time.Since(report.StartedAt)
	v.logger.Info("Verification finished",
		log.Environment(env.Name),
		log.Service(svc.Name),
		log.Int("passed", report.Passed()),
		log.Int("failed", report.Failed()))
	return report
}

func (v *Verifier) checkRuntimeBinary() CheckResult {
	start := time.Now()
	c := CheckResult{Category: CategoryRuntime, Name: v.config.RuntimeBinary + " installed"}
	path, err := v.runner.LookPath(v.config.RuntimeBinary)
	if err != nil {
		return fail(c, start, "%v", err)
	}
	return pass(c, start, "found at %s", path)
}

func (v *Verifier) checkDaemon(ctx context.Context) CheckResult {
	start := time.Now()
	c := CheckResult{Category: CategoryDaemon, Name: "daemon reachable"}
	if err := v.runtime.Ping(ctx); err != nil {
		return fail(c, start, "%v", err)
	}
	return pass(c, start, "daemon answered")
}

// checkService resolves the exact container name first so a container whose
// name merely contains the service name never satisfies the check.
func (v *Verifier) checkService(ctx context.Context, svc *types.ServiceSpec) CheckResult {
	start := time.Now()
	c := CheckResult{Category: CategoryService, Name: svc.Name + " running"}
	info, err := v.runtime.FindContainer(ctx, svc.Name)
	if err != nil {
		return fail(c, start, "%v", err)
	}
	res := v.containerProber.Execute(&probes.ProbeContext{
		Ctx:    ctx,
		Logger: v.logger,
		Target: probes.Target{Container: info.ID},
	})
	return fromProbe(c, res)
}

// checkEndpoint probes the configured HTTP check. Without one it falls back
// to a TCP connect on the first published TCP port, and skips when the
// service publishes none.
func (v *Verifier) checkEndpoint(ctx context.Context, svc *types.ServiceSpec) CheckResult {
	start := time.Now()
	c := CheckResult{Category: CategoryEndpoint, Name: "http endpoint"}

	pctx := v.probeBase
	pctx.Ctx = ctx
	pctx.Logger = v.logger

	if svc.HTTPCheck != nil {
		c.Name = svc.HTTPCheck.URL(v.config.Host)
		pctx.Target = probes.Target{
			Scheme: svc.HTTPCheck.Scheme,
			Host:   v.config.Host,
			Port:   svc.HTTPCheck.Port,
			Path:   svc.HTTPCheck.Path,
		}
		return fromProbe(c, v.httpProber.Execute(&pctx))
	}

	for _, p := range svc.Ports {
		if p.Proto() != "tcp" || p.Host == 0 {
			continue
		}
		c.Name = "tcp " + net.JoinHostPort(v.config.Host, strconv.Itoa(p.Host))
		pctx.Target = probes.Target{Host: v.config.Host, Port: p.Host}
		return fromProbe(c, v.tcpProber.Execute(&pctx))
	}

	c.Status = StatusSkip
	c.Message = "no http check or published port"
	c.Duration = time.Since(start)
	return c
}

// checkArtifacts reports one item per expected file. Credential files must
// be non-empty and owner-only.
func (v *Verifier) checkArtifacts(env *types.Environment, svc *types.ServiceSpec) []CheckResult {
	paths := env.Artifacts(svc.Name)
	var out []CheckResult

	if v.config.RequireCredentials && svc.CredentialFlag != "" {
		out = append(out, checkSecretFile(paths.Plaintext), checkSecretFile(paths.Hash))
	}
	for _, name := range types.WrapperScripts {
		out = append(out, checkFile(paths.Scripts[name], 0o100))
	}
	out = append(out, checkDir(paths.Data))
	return out
}

func checkSecretFile(path string) CheckResult {
	start := time.Now()
	c := CheckResult{Category: CategoryArtifacts, Name: filepath.Base(path)}
	fi, err := os.Stat(path)
	if err != nil {
		return fail(c, start, "%s", describeStatErr(err))
	}
	if fi.Size() == 0 {
		return fail(c, start, "file is empty")
	}
	if perm := fi.Mode().Perm(); perm&0o077 != 0 {
		return fail(c, start, "mode %04o, want 0600", perm)
	}
	return pass(c, start, "present, mode %04o", fi.Mode().Perm())
}

// checkFile requires a regular file with the given permission bits set.
func checkFile(path string, bits os.FileMode) CheckResult {
	start := time.Now()
	c := CheckResult{Category: CategoryArtifacts, Name: filepath.Base(path)}
	fi, err := os.Stat(path)
	if err != nil {
		return fail(c, start, "%s", describeStatErr(err))
	}
	if !fi.Mode().IsRegular() {
		return fail(c, start, "not a regular file")
	}
	if fi.Mode().Perm()&bits != bits {
		return fail(c, start, "mode %04o is not executable", fi.Mode().Perm())
	}
	return pass(c, start, "present")
}

func checkDir(path string) CheckResult {
	start := time.Now()
	c := CheckResult{Category: CategoryArtifacts, Name: filepath.Base(path) + "/"}
	fi, err := os.Stat(path)
	if err != nil {
		return fail(c, start, "%s", describeStatErr(err))
	}
	if !fi.IsDir() {
		return fail(c, start, "not a directory")
	}
	return pass(c, start, "present")
}

func describeStatErr(err error) string {
	if errors.Is(err, os.ErrNotExist) {
		return "missing"
	}
	return err.Error()
}

func pass(c CheckResult, start time.Time, format string, args ...interface{}) CheckResult {
	c.Status = StatusPass
	c.Message = fmt.Sprintf(format, args...)
	c.Duration = time.Since(start)
	return c
}

func fail(c CheckResult, start time.Time, format string, args ...interface{}) CheckResult {
	c.Status = StatusFail
	c.Message = strings.TrimSpace(fmt.Sprintf(format, args...))
	c.Duration = time.Since(start)
	return c
}

func fromProbe(c CheckResult, res probes.ProbeResult) CheckResult {
	c.Status = StatusFail
	if res.Success {
		c.Status = StatusPass
	}
	c.Message = res.Message
	c.Duration = res.Duration
	return c
}
