package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/runtime/docker/registryauth"
	"github.com/rzbill/hoist/pkg/types"
)

// Config holds Docker engine configuration options
type Config struct {
	// APIVersion is the Docker API version to use.
	// If empty, auto-negotiation will be used.
	APIVersion string `mapstructure:"api_version"`

	// FallbackAPIVersion is used when auto-negotiation picks a version the
	// daemon rejects.
	FallbackAPIVersion string `mapstructure:"fallback_api_version"`

	// Timeout for API version negotiation in seconds
	NegotiationTimeoutSeconds int `mapstructure:"negotiation_timeout_seconds"`

	// Registries supplies pull credentials for private images.
	Registries []registryauth.RegistryConfig `mapstructure:"registries"`
}

// DefaultConfig returns the default Docker configuration
func DefaultConfig() *Config {
	return &Config{
		APIVersion:                "",
		FallbackAPIVersion:        "1.43",
		NegotiationTimeoutSeconds: 3,
	}
}

// ContainerInfo is the observed state of one container.
type ContainerInfo struct {
	ID       string
	Name     string
	Image    string
	Running  bool
	Status   string
	ExitCode int
	Labels   map[string]string
}

// ServiceRun is a fully resolved container definition.
type ServiceRun struct {
	Name          string
	Image         string
	Cmd           []string
	Env           map[string]string
	Labels        map[string]string
	Ports         []types.PortMapping
	Mounts        []types.VolumeMount
	Network       string
	RestartPolicy string
	GPU           bool
}

// LogOptions controls Logs.
type LogOptions struct {
	Follow     bool
	Tail       string
	Timestamps bool
}

// Engine wraps the Docker Engine API.
type Engine struct {
	api       dockerAPI
	logger    log.Logger
	config    *Config
	providers []registryauth.Provider
}

// NewEngine connects to the daemon described by the environment
// (DOCKER_HOST and friends). It does not fail when the daemon is down; use
// Ping for that.
func NewEngine(ctx context.Context, logger log.Logger, config *Config) (*Engine, error) {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	if config == nil {
		config = DefaultConfig()
	}
	logger = logger.WithComponent("docker")

	cli, err := createClientWithVersionHandling(logger, config)
	if err != nil {
		return nil, err
	}
	return newEngine(ctx, cli, logger, config), nil
}

func newEngine(ctx context.Context, api dockerAPI, logger log.Logger, config *Config) *Engine {
	return &Engine{
		api:       api,
		logger:    logger,
		config:    config,
		providers: registryauth.BuildProviders(ctx, config.Registries),
	}
}

// Close releases the client connection.
func (e *Engine) Close() error {
	return e.api.Close()
}

// Ping checks that the daemon answers.
func (e *Engine) Ping(ctx context.Context) error {
	if _, err := e.api.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrDaemonUnreachable, err)
	}
	return nil
}

// HasRuntime reports whether the daemon has the named OCI runtime registered.
func (e *Engine) HasRuntime(ctx context.Context, name string) (bool, error) {
	info, err := e.api.Info(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to query daemon info: %w", err)
	}
	_, ok := info.Runtimes[name]
	return ok, nil
}

// FindNetwork looks up a network by exact name.
func (e *Engine) FindNetwork(ctx context.Context, name string) (string, bool, error) {
	nets, err := e.api.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to list networks: %w", err)
	}
	// The name filter matches substrings.
	for _, n := range nets {
		if n.Name == name {
			return n.ID, true, nil
		}
	}
	return "", false, nil
}

// CreateNetwork creates a bridge network.
func (e *Engine) CreateNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	resp, err := e.api.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: labels,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create network %s: %w", name, err)
	}
	e.logger.Info("Created network", log.Str("network", name), log.Str("network_id", resp.ID))
	return resp.ID, nil
}

// FindContainer returns the container whose name is exactly name.
func (e *Engine) FindContainer(ctx context.Context, name string) (*ContainerInfo, error) {
	list, err := e.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	for _, c := range list {
		for _, n := range c.Names {
			if strings.TrimPrefix(n, "/") == name {
				return summaryToInfo(c), nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", types.ErrServiceNotFound, name)
}

// Inspect returns the state of the container with the exact ID or name.
func (e *Engine) Inspect(ctx context.Context, idOrName string) (*ContainerInfo, error) {
	resp, err := e.api.ContainerInspect(ctx, idOrName)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrServiceNotFound, idOrName)
		}
		return nil, fmt.Errorf("failed to inspect container %s: %w", idOrName, err)
	}
	info := &ContainerInfo{}
	if resp.ContainerJSONBase != nil {
		info.ID = resp.ID
		info.Name = strings.TrimPrefix(resp.Name, "/")
		info.Image = resp.Image
		if resp.State != nil {
			info.Running = resp.State.Running
			info.Status = string(resp.State.Status)
			info.ExitCode = resp.State.ExitCode
		}
	}
	if resp.Config != nil {
		info.Labels = resp.Config.Labels
		info.Image = resp.Config.Image
	}
	return info, nil
}

// ListManaged returns every container labelled for environment.
func (e *Engine) ListManaged(ctx context.Context, environment string) ([]*ContainerInfo, error) {
	args := filters.NewArgs(filters.Arg("label", types.LabelManaged+"=true"))
	if environment != "" {
		args.Add("label", types.LabelEnvironment+"="+environment)
	}
	list, err := e.api.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	out := make([]*ContainerInfo, 0, len(list))
	for _, c := range list {
		out = append(out, summaryToInfo(c))
	}
	return out, nil
}

// CreateAndStart pulls the image if needed, creates the container and starts it.
func (e *Engine) CreateAndStart(ctx context.Context, run ServiceRun) (string, error) {
	cfg, hostCfg, netCfg, err := toContainerConfig(run)
	if err != nil {
		return "", err
	}
	if err := e.ensureImage(ctx, run.Image); err != nil {
		return "", fmt.Errorf("failed to pull image %s: %w", run.Image, err)
	}

	resp, err := e.api.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, run.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", run.Name, err)
	}
	for _, w := range resp.Warnings {
		e.logger.Warn("Docker warning", log.Str("container", run.Name), log.Str("warning", w))
	}

	if err := e.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return resp.ID, fmt.Errorf("failed to start container %s: %w", run.Name, err)
	}
	e.logger.Info("Started container", log.Str("container", run.Name), log.Str("container_id", shortID(resp.ID)))
	return resp.ID, nil
}

// Start starts an existing container.
func (e *Engine) Start(ctx context.Context, id string) error {
	if err := e.api.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		if cerrdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", types.ErrServiceNotFound, id)
		}
		return fmt.Errorf("failed to start container %s: %w", id, err)
	}
	return nil
}

// Stop stops a container. A missing or already stopped container is not an error.
func (e *Engine) Stop(ctx context.Context, id string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	err := e.api.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs})
	if err != nil && !cerrdefs.IsNotFound(err) && !cerrdefs.IsNotModified(err) {
		return fmt.Errorf("failed to stop container %s: %w", id, err)
	}
	return nil
}

// Restart stops then starts a container.
func (e *Engine) Restart(ctx context.Context, id string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	if err := e.api.ContainerRestart(ctx, id, container.StopOptions{Timeout: &secs}); err != nil {
		if cerrdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", types.ErrServiceNotFound, id)
		}
		return fmt.Errorf("failed to restart container %s: %w", id, err)
	}
	return nil
}

// Remove deletes a container. A missing container is not an error.
func (e *Engine) Remove(ctx context.Context, id string, force bool) error {
	err := e.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: force})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	return nil
}

// Logs copies a container's log stream to stdout and stderr.
func (e *Engine) Logs(ctx context.Context, id string, opts LogOptions, stdout, stderr io.Writer) error {
	resp, err := e.api.ContainerInspect(ctx, id)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s", types.ErrServiceNotFound, id)
		}
		return fmt.Errorf("failed to inspect container %s: %w", id, err)
	}

	rc, err := e.api.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     opts.Follow,
		Tail:       opts.Tail,
		Timestamps: opts.Timestamps,
	})
	if err != nil {
		return fmt.Errorf("failed to get logs for container %s: %w", id, err)
	}
	defer rc.Close()

	// TTY containers produce a raw stream without multiplexing headers.
	if resp.Config != nil && resp.Config.Tty {
		_, err = io.Copy(stdout, rc)
	} else {
		_, err = stdcopy.StdCopy(stdout, stderr, rc)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// RunOnce runs cmd in a throwaway container of image, waits for it to exit
// and returns its standard output. The container is always removed.
func (e *Engine) RunOnce(ctx context.Context, img string, cmd []string) (string, error) {
	if err := e.ensureImage(ctx, img); err != nil {
		return "", fmt.Errorf("failed to pull image %s: %w", img, err)
	}

	resp, err := e.api.ContainerCreate(ctx, &container.Config{
		Image:  img,
		Cmd:    cmd,
		Labels: map[string]string{types.LabelManaged: "true"},
	}, &container.HostConfig{NetworkMode: "none"}, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("failed to create one-shot container: %w", err)
	}
	defer func() {
		if err := e.Remove(context.WithoutCancel(ctx), resp.ID, true); err != nil {
			e.logger.Warn("Failed to remove one-shot container", log.Str("container_id", shortID(resp.ID)), log.Err(err))
		}
	}()

	waitCh, errCh := e.api.ContainerWait(ctx, resp.ID, container.WaitConditionNextExit)
	if err := e.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start one-shot container: %w", err)
	}

	var exitCode int64
	select {
	case err := <-errCh:
		return "", fmt.Errorf("waiting for one-shot container: %w", err)
	case res := <-waitCh:
		if res.Error != nil {
			return "", fmt.Errorf("one-shot container failed: %s", res.Error.Message)
		}
		exitCode = res.StatusCode
	case <-ctx.Done():
		return "", ctx.Err()
	}

	rc, err := e.api.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", fmt.Errorf("failed to read one-shot output: %w", err)
	}
	defer rc.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, rc); err != nil {
		return "", fmt.Errorf("failed to read one-shot output: %w", err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("one-shot container exited with code %d: %s", exitCode, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// ensureImage pulls an image from the registry if it doesn't exist locally
func (e *Engine) ensureImage(ctx context.Context, ref string) error {
	if _, err := e.api.ImageInspect(ctx, ref); err == nil {
		return nil
	}

	e.logger.Info("Pulling Docker image", log.Str("image", ref))
	reader, err := e.api.ImagePull(ctx, ref, image.PullOptions{
		RegistryAuth: e.resolveRegistryAuth(ctx, ref),
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func toContainerConfig(run ServiceRun) (*container.Config, *container.HostConfig, *network.NetworkingConfig, error) {
	if run.Name == "" || run.Image == "" {
		return nil, nil, nil, fmt.Errorf("container name and image are required")
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for _, p := range run.Ports {
		port, err := nat.NewPort(p.Proto(), strconv.Itoa(p.Container))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("invalid port %d/%s: %w", p.Container, p.Proto(), err)
		}
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], nat.PortBinding{HostPort: strconv.Itoa(p.Host)})
	}

	mounts := make([]mount.Mount, 0, len(run.Mounts))
	for _, m := range run.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	cfg := &container.Config{
		Image:        run.Image,
		Cmd:          run.Cmd,
		Env:          formatEnvVars(run.Env),
		Labels:       run.Labels,
		ExposedPorts: exposed,
	}

	restart := run.RestartPolicy
	if restart == "" {
		restart = string(container.RestartPolicyUnlessStopped)
	}
	hostCfg := &container.HostConfig{
		PortBindings:  bindings,
		Mounts:        mounts,
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyMode(restart)},
	}
	if run.GPU {
		hostCfg.DeviceRequests = []container.DeviceRequest{{
			Driver:       "nvidia",
			Count:        -1,
			Capabilities: [][]string{{"gpu"}},
		}}
	}

	var netCfg *network.NetworkingConfig
	if run.Network != "" {
		hostCfg.NetworkMode = container.NetworkMode(run.Network)
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{run.Network: {}},
		}
	}
	return cfg, hostCfg, netCfg, nil
}

// formatEnvVars converts a map to KEY=VALUE pairs in key order.
func formatEnvVars(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

func summaryToInfo(c container.Summary) *ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return &ContainerInfo{
		ID:      c.ID,
		Name:    name,
		Image:   c.Image,
		Running: c.State == container.StateRunning,
		Status:  c.Status,
		Labels:  c.Labels,
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
