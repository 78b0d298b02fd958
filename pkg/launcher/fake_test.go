package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rzbill/hoist/pkg/runtime/docker"
	"github.com/rzbill/hoist/pkg/types"
)

// fakeRuntime is an in-memory Runtime.
type fakeRuntime struct {
	mu sync.Mutex

	pingErr  error
	runtimes map[string]bool
	networks map[string]string

	containers map[string]*docker.ContainerInfo // by name

	// neverRunning keeps started containers in the "created" state.
	neverRunning bool

	networkCreates int
	creates        []docker.ServiceRun
	starts         int
	stops          int
	inspects       int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		runtimes:   map[string]bool{"runc": true},
		networks:   make(map[string]string),
		containers: make(map[string]*docker.ContainerInfo),
	}
}

func (f *fakeRuntime) Ping(ctx context.Context) error {
	if f.pingErr != nil {
		return fmt.Errorf("%w: %v", types.ErrDaemonUnreachable, f.pingErr)
	}
	return nil
}

func (f *fakeRuntime) HasRuntime(ctx context.Context, name string) (bool, error) {
	return f.runtimes[name], nil
}

func (f *fakeRuntime) FindNetwork(ctx context.Context, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.networks[name]
	return id, ok, nil
}

func (f *fakeRuntime) CreateNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.networkCreates++
	id := fmt.Sprintf("net-%d", f.networkCreates)
	f.networks[name] = id
	return id, nil
}

func (f *fakeRuntime) add(name string, running bool) *docker.ContainerInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := &docker.ContainerInfo{ID: "id-" + name, Name: name, Running: running, Status: "exited"}
	if running {
		info.Status = "running"
	}
	f.containers[name] = info
	return info
}

func (f *fakeRuntime) FindContainer(ctx context.Context, name string) (*docker.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[name]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, fmt.Errorf("%w: %s", types.ErrServiceNotFound, name)
}

func (f *fakeRuntime) byID(id string) (*docker.ContainerInfo, error) {
	for _, c := range f.containers {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", types.ErrServiceNotFound, id)
}

func (f *fakeRuntime) Inspect(ctx context.Context, id string) (*docker.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inspects++
	c, err := f.byID(id)
	if err != nil {
		return nil, err
	}
	cp := *c
	return &cp, nil
}

func (f *fakeRuntime) CreateAndStart(ctx context.Context, run docker.ServiceRun) (string, error) {
	f.mu.Lock()
	f.creates = append(f.creates, run)
	f.mu.Unlock()
	info := f.add(run.Name, !f.neverRunning)
	if f.neverRunning {
		info.Status = "created"
	}
	return info.ID, nil
}

func (f *fakeRuntime) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	c, err := f.byID(id)
	if err != nil {
		return err
	}
	c.Running = !f.neverRunning
	return nil
}

func (f *fakeRuntime) Stop(ctx context.Context, id string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if c, err := f.byID(id); err == nil {
		c.Running = false
	}
	return nil
}

func (f *fakeRuntime) Restart(ctx context.Context, id string, timeout time.Duration) error {
	return errors.New("not used")
}

func (f *fakeRuntime) Logs(ctx context.Context, id string, opts docker.LogOptions, stdout, stderr io.Writer) error {
	_, err := io.WriteString(stdout, "log line\n")
	return err
}
