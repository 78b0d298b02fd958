package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

type fakeContainer struct {
	id      string
	name    string
	config  *container.Config
	host    *container.HostConfig
	net     *network.NetworkingConfig
	running bool
}

// fakeAPI is an in-memory dockerAPI.
type fakeAPI struct {
	mu         sync.Mutex
	pingErr    error
	runtimes   map[string]system.RuntimeWithStatus
	networks   []network.Summary
	containers map[string]*fakeContainer
	images     map[string]bool
	pulls      []image.PullOptions
	nextID     int

	// oneShot output for RunOnce.
	stdout, stderr string
	exitCode       int64

	networkCreates int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		runtimes:   map[string]system.RuntimeWithStatus{"runc": {}},
		containers: make(map[string]*fakeContainer),
		images:     make(map[string]bool),
	}
}

func (f *fakeAPI) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{APIVersion: "1.47"}, f.pingErr
}

func (f *fakeAPI) Info(ctx context.Context) (system.Info, error) {
	return system.Info{Runtimes: f.runtimes}, nil
}

func (f *fakeAPI) NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []network.Summary
	for _, name := range options.Filters.Get("name") {
		for _, n := range f.networks {
			if strings.Contains(n.Name, name) {
				out = append(out, n)
			}
		}
	}
	return out, nil
}

func (f *fakeAPI) NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networkCreates++
	id := fmt.Sprintf("net%d", len(f.networks)+1)
	f.networks = append(f.networks, network.Summary{Name: name, ID: id, Labels: options.Labels})
	return network.CreateResponse{ID: id}, nil
}

func (f *fakeAPI) ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := options.Filters.Get("name")
	labels := options.Filters.Get("label")
	var out []container.Summary
	for _, c := range f.containers {
		if len(names) > 0 && !strings.Contains(c.name, names[0]) {
			continue
		}
		if !hasLabels(c.config.Labels, labels) {
			continue
		}
		state := container.StateExited
		if c.running {
			state = container.StateRunning
		}
		out = append(out, container.Summary{ID: c.id, Names: []string{"/" + c.name}, Image: c.config.Image, State: state, Labels: c.config.Labels})
	}
	return out, nil
}

func hasLabels(have map[string]string, want []string) bool {
	for _, kv := range want {
		k, v, _ := strings.Cut(kv, "=")
		if have[k] != v {
			return false
		}
	}
	return true
}

func (f *fakeAPI) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("%064d", f.nextID)
	if containerName == "" {
		containerName = "oneshot" + id[:6]
	}
	f.containers[id] = &fakeContainer{id: id, name: containerName, config: config, host: hostConfig, net: networkingConfig}
	return container.CreateResponse{ID: id}, nil
}

func (f *fakeAPI) lookup(id string) (*fakeContainer, error) {
	if c, ok := f.containers[id]; ok {
		return c, nil
	}
	for _, c := range f.containers {
		if c.name == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no such container %s: %w", id, cerrdefs.ErrNotFound)
}

func (f *fakeAPI) ContainerStart(ctx context.Context, id string, options container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.lookup(id)
	if err != nil {
		return err
	}
	c.running = true
	return nil
}

func (f *fakeAPI) ContainerStop(ctx context.Context, id string, options container.StopOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.lookup(id)
	if err != nil {
		return err
	}
	c.running = false
	return nil
}

func (f *fakeAPI) ContainerRestart(ctx context.Context, id string, options container.StopOptions) error {
	return f.ContainerStart(ctx, id, container.StartOptions{})
}

func (f *fakeAPI) ContainerRemove(ctx context.Context, id string, options container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.lookup(id)
	if err != nil {
		return err
	}
	delete(f.containers, c.id)
	return nil
}

func (f *fakeAPI) ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.lookup(id)
	if err != nil {
		return container.InspectResponse{}, err
	}
	status := container.StateExited
	if c.running {
		status = container.StateRunning
	}
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{
			ID:    c.id,
			Name:  "/" + c.name,
			State: &container.State{Running: c.running, Status: status},
		},
		Config: c.config,
	}, nil
}

func (f *fakeAPI) ContainerLogs(ctx context.Context, id string, options container.LogsOptions) (io.ReadCloser, error) {
	var buf bytes.Buffer
	if f.stdout != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(f.stdout))
	}
	if f.stderr != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(f.stderr))
	}
	return io.NopCloser(&buf), nil
}

func (f *fakeAPI) ContainerWait(ctx context.Context, id string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	waitCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	waitCh <- container.WaitResponse{StatusCode: f.exitCode}
	return waitCh, errCh
}

func (f *fakeAPI) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, options)
	f.images[ref] = true
	return io.NopCloser(strings.NewReader(`{"status":"done"}`)), nil
}

func (f *fakeAPI) ImageInspect(ctx context.Context, ref string, opts ...client.ImageInspectOption) (image.InspectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.images[ref] {
		return image.InspectResponse{ID: ref}, nil
	}
	return image.InspectResponse{}, fmt.Errorf("no such image: %w", cerrdefs.ErrNotFound)
}

func (f *fakeAPI) Close() error { return nil }
