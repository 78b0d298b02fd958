package launcher

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kballard/go-shellquote"
	"github.com/rzbill/hoist/pkg/runtime/docker"
	"github.com/rzbill/hoist/pkg/types"
)

// directMechanism runs a single container through the Engine API.
type directMechanism struct {
	runtime Runtime
	binary  string
}

func (m *directMechanism) Name() string { return MechanismDirect }

func (m *directMechanism) Up(ctx context.Context, env *types.Environment, run docker.ServiceRun) (string, error) {
	return m.runtime.CreateAndStart(ctx, run)
}

func (m *directMechanism) WriteScripts(env *types.Environment, run docker.ServiceRun, hashPath string) error {
	name := shellquote.Join(run.Name)
	runCmd := directRunCommand(m.binary, run, hashPath)
	bin := shellquote.Join(m.binary)

	return writeScripts(env.Artifacts(run.Name), map[string]string{
		"start.sh":   fmt.Sprintf("%s start %s 2>/dev/null || %s", bin, name, runCmd),
		"stop.sh":    fmt.Sprintf("%s stop %s || true", bin, name),
		"restart.sh": restartBody,
		"logs.sh":    fmt.Sprintf("exec %s logs -f %s \"$@\"", bin, name),
	})
}

// directRunCommand renders the equivalent `docker run` invocation. When
// hashPath is set the last command argument is the credential; the script
// reads it from hashPath at run time instead of embedding it.
func directRunCommand(binary string, run docker.ServiceRun, hashPath string) string {
	args := []string{binary, "run", "-d", "--name", run.Name}
	if run.Network != "" {
		args = append(args, "--network", run.Network)
	}
	if run.RestartPolicy != "" {
		args = append(args, "--restart", run.RestartPolicy)
	}
	for _, p := range run.Ports {
		args = append(args, "-p", strconv.Itoa(p.Host)+":"+strconv.Itoa(p.Container)+"/"+p.Proto())
	}
	for _, v := range run.Mounts {
		spec := v.Source + ":" + v.Target
		if v.ReadOnly {
			spec += ":ro"
		}
		args = append(args, "-v", spec)
	}
	for _, kv := range sortedPairs(run.Labels) {
		args = append(args, "--label", kv)
	}
	for _, kv := range sortedPairs(run.Env) {
		args = append(args, "-e", kv)
	}
	if run.GPU {
		args = append(args, "--gpus", "all")
	}
	args = append(args, run.Image)

	cmd := run.Cmd
	var tail string
	if hashPath != "" && len(cmd) > 0 {
		tail = fmt.Sprintf(" \"$(cat %s)\"", shellquote.Join(hashPath))
		cmd = cmd[:len(cmd)-1]
	}
	args = append(args, cmd...)
	return shellquote.Join(args...) + tail
}
