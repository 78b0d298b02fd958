package launcher

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/runtime/command"
	"github.com/rzbill/hoist/pkg/runtime/docker"
	"github.com/rzbill/hoist/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testHash = "$2y$05$abcdefghijklmnopqrstuv"

func testEnv(t *testing.T) *types.Environment {
	return &types.Environment{Name: "test", BaseDir: t.TempDir(), Network: "hoist"}
}

func portainerSpec() *types.ServiceSpec {
	return &types.ServiceSpec{
		Name:           "portainer",
		Image:          "portainer/portainer-ce:latest",
		Command:        []string{"-H", "unix:///var/run/docker.sock"},
		Ports:          []types.PortMapping{{Host: 9443, Container: 9443}},
		Volumes:        []types.VolumeMount{{Source: "data", Target: "/data"}, {Source: "/var/run/docker.sock", Target: "/var/run/docker.sock"}},
		CredentialFlag: "--admin-password",
	}
}

// newTestLauncher returns a launcher on a fake clock: sleeping advances time
// instantly.
func newTestLauncher(rt *fakeRuntime, runner *command.FakeRunner, cfg Config) *Launcher {
	l := New(rt, runner, cfg, log.NewTestLogger())
	clock := time.Unix(0, 0)
	l.now = func() time.Time { return clock }
	l.sleep = func(ctx context.Context, d time.Duration) error {
		clock = clock.Add(d)
		return ctx.Err()
	}
	return l
}

func directConfig() Config {
	cfg := DefaultConfig()
	cfg.Mechanism = MechanismDirect
	return cfg
}

// Network absent: one create, one start, one readiness check.
func TestFreshLaunchScenario(t *testing.T) {
	rt := newFakeRuntime()
	l := newTestLauncher(rt, command.NewFakeRunner("docker"), directConfig())
	env := testEnv(t)
	ctx := context.Background()

	created, err := l.EnsureNetwork(ctx, env)
	require.NoError(t, err)
	assert.True(t, created)

	res, err := l.Launch(ctx, env, portainerSpec(), LaunchOptions{Hash: testHash, HashPath: env.Artifacts("portainer").Hash})
	require.NoError(t, err)

	assert.Equal(t, 1, rt.networkCreates)
	assert.Len(t, rt.creates, 1)
	assert.Equal(t, 1, res.Checks)
	assert.Equal(t, 1, rt.inspects)
	assert.True(t, res.Started)
	assert.Equal(t, MechanismDirect, res.Mechanism)

	run := rt.creates[0]
	assert.Equal(t, []string{"-H", "unix:///var/run/docker.sock", "--admin-password", testHash}, run.Cmd)
	assert.Equal(t, "hoist", run.Network)
	assert.Equal(t, "true", run.Labels[types.LabelManaged])
	assert.Equal(t, "test", run.Labels[types.LabelEnvironment])
	assert.Equal(t, env.Artifacts("portainer").Data, run.Mounts[0].Source)
	assert.DirExists(t, env.Artifacts("portainer").Data)
}

func TestEnsureNetworkIsIdempotent(t *testing.T) {
	rt := newFakeRuntime()
	l := newTestLauncher(rt, command.NewFakeRunner(), directConfig())
	env := testEnv(t)

	for i := 0; i < 3; i++ {
		_, err := l.EnsureNetwork(context.Background(), env)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, rt.networkCreates)
}

func TestLaunchAlreadyRunning(t *testing.T) {
	rt := newFakeRuntime()
	rt.add("portainer", true)
	l := newTestLauncher(rt, command.NewFakeRunner(), directConfig())

	res, err := l.Launch(context.Background(), testEnv(t), portainerSpec(), LaunchOptions{})
	require.NoError(t, err)
	assert.False(t, res.Started)
	assert.Empty(t, rt.creates)
	assert.Equal(t, "id-portainer", res.ContainerID)
}

func TestLaunchStartsStoppedContainer(t *testing.T) {
	rt := newFakeRuntime()
	rt.add("portainer", false)
	l := newTestLauncher(rt, command.NewFakeRunner(), directConfig())

	res, err := l.Launch(context.Background(), testEnv(t), portainerSpec(), LaunchOptions{})
	require.NoError(t, err)
	assert.True(t, res.Started)
	assert.Equal(t, 1, rt.starts)
	assert.Empty(t, rt.creates)
}

func TestReadinessTimeout(t *testing.T) {
	rt := newFakeRuntime()
	rt.neverRunning = true
	cfg := directConfig()
	cfg.SettleDelay = time.Second
	cfg.PollInterval = 2 * time.Second
	cfg.ReadyTimeout = 10 * time.Second
	l := newTestLauncher(rt, command.NewFakeRunner(), cfg)

	res, err := l.Launch(context.Background(), testEnv(t), portainerSpec(), LaunchOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrReadinessTimeout))
	// checks at t=0,2,4,6,8,10 after settling
	assert.Equal(t, 6, res.Checks)
}

func TestReadinessHonoursCancellation(t *testing.T) {
	rt := newFakeRuntime()
	rt.neverRunning = true
	l := newTestLauncher(rt, command.NewFakeRunner(), directConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.WaitReady(ctx, "whatever")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPreflight(t *testing.T) {
	rt := newFakeRuntime()

	l := newTestLauncher(rt, command.NewFakeRunner(), directConfig())
	_, err := l.Preflight(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRuntimeUnavailable))
	var pe *PreflightError
	require.True(t, errors.As(err, &pe))
	assert.NotEmpty(t, pe.Remediation)

	rt.pingErr = errors.New("connection refused")
	l = newTestLauncher(rt, command.NewFakeRunner("docker"), directConfig())
	_, err = l.Preflight(context.Background(), false)
	assert.True(t, errors.Is(err, types.ErrDaemonUnreachable))

	rt.pingErr = nil
	report, err := l.Preflight(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, report.GPUAvailable)

	rt.runtimes["nvidia"] = true
	report, err = l.Preflight(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, report.GPUAvailable)
}

func TestSelectMechanism(t *testing.T) {
	rt := newFakeRuntime()
	withCompose := command.NewFakeRunner("docker")
	withoutCompose := command.NewFakeRunner("docker")
	withoutCompose.Responses["docker"] = command.Response{Err: errors.New("unknown command: compose")}

	cfg := DefaultConfig()
	m, err := newTestLauncher(rt, withCompose, cfg).SelectMechanism(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MechanismCompose, m.Name())

	m, err = newTestLauncher(rt, withoutCompose, cfg).SelectMechanism(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MechanismDirect, m.Name())

	cfg.Mechanism = MechanismCompose
	_, err = newTestLauncher(rt, withoutCompose, cfg).SelectMechanism(context.Background())
	assert.Error(t, err)

	cfg.Mechanism = "podman"
	_, err = newTestLauncher(rt, withCompose, cfg).SelectMechanism(context.Background())
	assert.Error(t, err)
}

func TestComposeUp(t *testing.T) {
	rt := newFakeRuntime()
	runner := command.NewFakeRunner("docker")
	l := newTestLauncher(rt, runner, DefaultConfig())
	env := testEnv(t)
	spec := portainerSpec()
	require.NoError(t, os.MkdirAll(env.Artifacts(spec.Name).Dir, 0755))

	// compose creates the container out of band.
	rt.add(spec.Name, true)
	id, err := l.compose().Up(context.Background(), env, buildRun(env, spec, LaunchOptions{Hash: testHash}))
	require.NoError(t, err)
	assert.Equal(t, "id-portainer", id)

	paths := env.Artifacts(spec.Name)
	fi, err := os.Stat(paths.Compose)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fi.Mode().Perm())

	calls := runner.CallsTo("docker")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"compose", "-f", paths.Compose, "-p", "test-portainer", "up", "-d"}, calls[0].Args)
}

func TestRenderCompose(t *testing.T) {
	env := &types.Environment{Name: "prod", BaseDir: "/srv/hoist", Network: "hoist"}
	spec := portainerSpec()
	spec.Env = map[string]string{"TZ": "UTC", "PRICE": "$5"}
	out, err := RenderCompose("prod-portainer", buildRun(env, spec, LaunchOptions{Hash: testHash, GPU: true}))
	require.NoError(t, err)

	var f composeFile
	require.NoError(t, yaml.Unmarshal(out, &f))
	svc := f.Services["portainer"]
	assert.Equal(t, "portainer", svc.ContainerName)
	assert.Equal(t, []string{"9443:9443/tcp"}, svc.Ports)
	assert.Contains(t, svc.Volumes, "/srv/hoist/portainer/data:/data")
	assert.Equal(t, "$$2y$$05$$abcdefghijklmnopqrstuv", svc.Command[len(svc.Command)-1])
	assert.Equal(t, "$$5", svc.Environment["PRICE"])
	assert.Equal(t, "unless-stopped", svc.Restart)
	assert.Equal(t, []string{"hoist"}, svc.Networks)
	assert.True(t, f.Networks["hoist"].External)
	require.NotNil(t, svc.Deploy)
	assert.Equal(t, "nvidia", svc.Deploy.Resources.Reservations.Devices[0].Driver)
}

func TestDirectScripts(t *testing.T) {
	rt := newFakeRuntime()
	l := newTestLauncher(rt, command.NewFakeRunner("docker"), directConfig())
	env := testEnv(t)
	paths := env.Artifacts("portainer")

	_, err := l.Launch(context.Background(), env, portainerSpec(), LaunchOptions{Hash: testHash, HashPath: paths.Hash})
	require.NoError(t, err)

	for _, name := range types.WrapperScripts {
		fi, err := os.Stat(paths.Scripts[name])
		require.NoError(t, err, name)
		assert.Equal(t, ScriptMode, fi.Mode().Perm(), name)
	}

	start, _ := os.ReadFile(paths.Scripts["start.sh"])
	assert.Contains(t, string(start), "docker start portainer")
	assert.Contains(t, string(start), "--network hoist")
	assert.Contains(t, string(start), `"$(cat `+paths.Hash+`)"`)
	assert.NotContains(t, string(start), testHash, "hash must not be embedded")

	stop, _ := os.ReadFile(paths.Scripts["stop.sh"])
	assert.Contains(t, string(stop), "|| true")

	restart, _ := os.ReadFile(paths.Scripts["restart.sh"])
	assert.Contains(t, string(restart), "stop.sh")
	assert.Contains(t, string(restart), "start.sh")
}

func TestComposeScripts(t *testing.T) {
	env := testEnv(t)
	paths := env.Artifacts("portainer")
	require.NoError(t, os.MkdirAll(paths.Dir, 0755))

	l := newTestLauncher(newFakeRuntime(), command.NewFakeRunner("docker"), DefaultConfig())
	require.NoError(t, l.compose().WriteScripts(env, buildRun(env, portainerSpec(), LaunchOptions{}), ""))

	logs, _ := os.ReadFile(paths.Scripts["logs.sh"])
	assert.True(t, strings.HasPrefix(string(logs), "#!/usr/bin/env bash"))
	assert.Contains(t, string(logs), "docker compose -f "+paths.Compose+" -p test-portainer logs -f")
}

func TestComposeLaunchReusedContainerWritesComposeFile(t *testing.T) {
	for _, running := range []bool{true, false} {
		rt := newFakeRuntime()
		rt.add("portainer", running)
		runner := command.NewFakeRunner("docker")
		cfg := DefaultConfig()
		cfg.Mechanism = MechanismCompose
		l := newTestLauncher(rt, runner, cfg)
		env := testEnv(t)
		paths := env.Artifacts("portainer")

		res, err := l.Launch(context.Background(), env, portainerSpec(), LaunchOptions{Hash: testHash, HashPath: paths.Hash})
		require.NoError(t, err)
		assert.Equal(t, MechanismCompose, res.Mechanism)
		assert.Equal(t, "id-portainer", res.ContainerID)

		data, err := os.ReadFile(paths.Compose)
		require.NoError(t, err, "running=%v", running)
		var f composeFile
		require.NoError(t, yaml.Unmarshal(data, &f))
		assert.Equal(t, "test-portainer", f.Name)
		assert.Contains(t, f.Services, "portainer")

		start, err := os.ReadFile(paths.Scripts["start.sh"])
		require.NoError(t, err)
		assert.Contains(t, string(start), "-f "+paths.Compose)

		for _, c := range runner.CallsTo("docker") {
			assert.NotContains(t, c.Args, "up", "reused container must not be recreated")
		}
	}
}

func TestLifecycle(t *testing.T) {
	rt := newFakeRuntime()
	l := newTestLauncher(rt, command.NewFakeRunner(), directConfig())
	ctx := context.Background()

	assert.NoError(t, l.Stop(ctx, "portainer"), "stopping a missing service is best-effort")
	_, err := l.Start(ctx, "portainer")
	assert.True(t, errors.Is(err, types.ErrServiceNotFound))

	rt.add("portainer", true)
	checks, err := l.Restart(ctx, "portainer")
	require.NoError(t, err)
	assert.Equal(t, 1, checks)
	assert.Equal(t, 1, rt.stops)
	assert.Equal(t, 1, rt.starts)

	var out bytes.Buffer
	require.NoError(t, l.Logs(ctx, "portainer", docker.LogOptions{}, &out, &out))
	assert.Equal(t, "log line\n", out.String())
}
