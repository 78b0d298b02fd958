package launcher

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/moby/sys/atomicwriter"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/runtime/command"
	"github.com/rzbill/hoist/pkg/runtime/docker"
	"github.com/rzbill/hoist/pkg/types"
	"gopkg.in/yaml.v3"
)

// composeMechanism writes a compose file and runs `compose up -d`.
type composeMechanism struct {
	runner  command.Runner
	runtime Runtime
	command []string
	logger  log.Logger
}

func (m *composeMechanism) Name() string { return MechanismCompose }

func (m *composeMechanism) Up(ctx context.Context, env *types.Environment, run docker.ServiceRun) (string, error) {
	if err := writeCompose(env, run); err != nil {
		return "", err
	}

	args := append(m.baseArgs(env, run.Name), "up", "-d")
	if out, err := m.runner.Output(ctx, nil, m.command[0], args...); err != nil {
		return "", fmt.Errorf("compose up failed: %w", err)
	} else if len(out) > 0 {
		m.logger.Debug("compose up", log.Str("output", strings.TrimSpace(string(out))))
	}

	info, err := m.runtime.FindContainer(ctx, run.Name)
	if err != nil {
		return "", fmt.Errorf("compose reported success but container is missing: %w", err)
	}
	return info.ID, nil
}

// writeCompose renders run to the service's compose file. The file carries
// the credential hash.
func writeCompose(env *types.Environment, run docker.ServiceRun) error {
	data, err := RenderCompose(ProjectName(env, run.Name), run)
	if err != nil {
		return err
	}
	if err := atomicwriter.WriteFile(env.Artifacts(run.Name).Compose, data, 0600); err != nil {
		return fmt.Errorf("failed to write compose file: %w", err)
	}
	return nil
}

func (m *composeMechanism) baseArgs(env *types.Environment, service string) []string {
	args := append([]string{}, m.command[1:]...)
	return append(args, "-f", env.Artifacts(service).Compose, "-p", ProjectName(env, service))
}

// WriteScripts also writes the compose file, since a reused container never
// goes through Up and start.sh depends on it.
func (m *composeMechanism) WriteScripts(env *types.Environment, run docker.ServiceRun, _ string) error {
	if err := writeCompose(env, run); err != nil {
		return err
	}
	base := shellquote.Join(append([]string{m.command[0]}, m.baseArgs(env, run.Name)...)...)
	return writeScripts(env.Artifacts(run.Name), map[string]string{
		"start.sh":   base + " up -d",
		"stop.sh":    base + " stop || true",
		"restart.sh": restartBody,
		"logs.sh":    "exec " + base + " logs -f \"$@\"",
	})
}

// ProjectName derives a compose project name from the environment and service.
func ProjectName(env *types.Environment, service string) string {
	raw := strings.ToLower(env.Name + "-" + service)
	var sb strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('-')
		}
	}
	return sb.String()
}

type composeFile struct {
	Name     string                    `yaml:"name"`
	Services map[string]composeService `yaml:"services"`
	Networks map[string]composeNetwork `yaml:"networks,omitempty"`
}

type composeService struct {
	Image         string            `yaml:"image"`
	ContainerName string            `yaml:"container_name"`
	Command       []string          `yaml:"command,omitempty"`
	Restart       string            `yaml:"restart,omitempty"`
	Ports         []string          `yaml:"ports,omitempty"`
	Volumes       []string          `yaml:"volumes,omitempty"`
	Environment   map[string]string `yaml:"environment,omitempty"`
	Labels        map[string]string `yaml:"labels,omitempty"`
	Networks      []string          `yaml:"networks,omitempty"`
	Deploy        *composeDeploy    `yaml:"deploy,omitempty"`
}

type composeNetwork struct {
	External bool   `yaml:"external"`
	Name     string `yaml:"name"`
}

type composeDeploy struct {
	Resources composeResources `yaml:"resources"`
}

type composeResources struct {
	Reservations composeReservations `yaml:"reservations"`
}

type composeReservations struct {
	Devices []composeDevice `yaml:"devices"`
}

type composeDevice struct {
	Driver       string   `yaml:"driver"`
	Count        string   `yaml:"count"`
	Capabilities []string `yaml:"capabilities"`
}

// RenderCompose renders run as a single-service compose file. The network is
// declared external because EnsureNetwork owns it. '$' is escaped so compose
// does not interpolate bcrypt hashes.
func RenderCompose(project string, run docker.ServiceRun) ([]byte, error) {
	svc := composeService{
		Image:         run.Image,
		ContainerName: run.Name,
		Restart:       run.RestartPolicy,
		Labels:        run.Labels,
	}
	for _, c := range run.Cmd {
		svc.Command = append(svc.Command, escapeCompose(c))
	}
	for _, p := range run.Ports {
		svc.Ports = append(svc.Ports, strconv.Itoa(p.Host)+":"+strconv.Itoa(p.Container)+"/"+p.Proto())
	}
	for _, v := range run.Mounts {
		spec := v.Source + ":" + v.Target
		if v.ReadOnly {
			spec += ":ro"
		}
		svc.Volumes = append(svc.Volumes, spec)
	}
	if len(run.Env) > 0 {
		svc.Environment = make(map[string]string, len(run.Env))
		for k, v := range run.Env {
			svc.Environment[k] = escapeCompose(v)
		}
	}
	if run.GPU {
		svc.Deploy = &composeDeploy{Resources: composeResources{Reservations: composeReservations{
			Devices: []composeDevice{{Driver: "nvidia", Count: "all", Capabilities: []string{"gpu"}}},
		}}}
	}

	f := composeFile{
		Name:     project,
		Services: map[string]composeService{run.Name: svc},
	}
	if run.Network != "" {
		svc.Networks = []string{run.Network}
		f.Services[run.Name] = svc
		f.Networks = map[string]composeNetwork{run.Network: {External: true, Name: run.Network}}
	}

	out, err := yaml.Marshal(&f)
	if err != nil {
		return nil, fmt.Errorf("failed to render compose file: %w", err)
	}
	return out, nil
}

func escapeCompose(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

func sortedPairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}
