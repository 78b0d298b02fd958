package types

import (
	"fmt"
	"strings"
)

// PortMapping publishes a container port on the host.
type PortMapping struct {
	Host      int    `json:"host" yaml:"host" mapstructure:"host"`
	Container int    `json:"container" yaml:"container" mapstructure:"container"`
	Protocol  string `json:"protocol,omitempty" yaml:"protocol,omitempty" mapstructure:"protocol"`
}

// Proto returns the protocol, defaulting to tcp.
func (p PortMapping) Proto() string {
	if p.Protocol == "" {
		return "tcp"
	}
	return strings.ToLower(p.Protocol)
}

// VolumeMount binds a host path into the container. A relative Source is
// resolved against the service directory.
type VolumeMount struct {
	Source   string `json:"source" yaml:"source" mapstructure:"source"`
	Target   string `json:"target" yaml:"target" mapstructure:"target"`
	ReadOnly bool   `json:"readOnly,omitempty" yaml:"read_only,omitempty" mapstructure:"read_only"`
}

// HTTPCheck describes the endpoint the verifier probes.
type HTTPCheck struct {
	Scheme string `json:"scheme" yaml:"scheme" mapstructure:"scheme"`
	Port   int    `json:"port" yaml:"port" mapstructure:"port"`
	Path   string `json:"path" yaml:"path" mapstructure:"path"`
}

// URL builds the check URL against host.
func (c *HTTPCheck) URL(host string) string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = "http"
	}
	path := c.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, host, c.Port, path)
}

// ServiceSpec describes one long-running containerized service.
type ServiceSpec struct {
	// Name is the exact container name.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	Image   string   `json:"image" yaml:"image" mapstructure:"image"`
	Command []string `json:"command,omitempty" yaml:"command,omitempty" mapstructure:"command"`

	Ports   []PortMapping `json:"ports,omitempty" yaml:"ports,omitempty" mapstructure:"ports"`
	Volumes []VolumeMount `json:"volumes,omitempty" yaml:"volumes,omitempty" mapstructure:"volumes"`

	// Env is passed to the container verbatim.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty" mapstructure:"env"`

	// CredentialFlag, when set, is appended to Command followed by the
	// hashed credential.
	CredentialFlag string `json:"credentialFlag,omitempty" yaml:"credential_flag,omitempty" mapstructure:"credential_flag"`

	// RestartPolicy is a Docker restart policy name; empty means unless-stopped.
	RestartPolicy string `json:"restartPolicy,omitempty" yaml:"restart_policy,omitempty" mapstructure:"restart_policy"`

	// GPU requests all NVIDIA devices.
	GPU bool `json:"gpu,omitempty" yaml:"gpu,omitempty" mapstructure:"gpu"`

	HTTPCheck *HTTPCheck `json:"httpCheck,omitempty" yaml:"http_check,omitempty" mapstructure:"http_check"`
}

// Validate checks the fields a launcher relies on.
func (s *ServiceSpec) Validate() error {
	if s.Name == "" {
		return NewValidationError("service name is required")
	}
	if !ValidName(s.Name) {
		return NewValidationError(fmt.Sprintf("service name %q must match %s", s.Name, namePattern.String()))
	}
	if s.Image == "" {
		return NewValidationError(fmt.Sprintf("service %s: image is required", s.Name))
	}
	seen := make(map[string]bool, len(s.Ports))
	for _, p := range s.Ports {
		if p.Host <= 0 || p.Host > 65535 || p.Container <= 0 || p.Container > 65535 {
			return NewValidationError(fmt.Sprintf("service %s: invalid port mapping %d:%d", s.Name, p.Host, p.Container))
		}
		if proto := p.Proto(); proto != "tcp" && proto != "udp" {
			return NewValidationError(fmt.Sprintf("service %s: unsupported protocol %q", s.Name, p.Protocol))
		}
		key := fmt.Sprintf("%d/%s", p.Host, p.Proto())
		if seen[key] {
			return NewValidationError(fmt.Sprintf("service %s: host port %s published twice", s.Name, key))
		}
		seen[key] = true
	}
	for _, v := range s.Volumes {
		if v.Source == "" || v.Target == "" {
			return NewValidationError(fmt.Sprintf("service %s: volume needs source and target", s.Name))
		}
	}
	if s.HTTPCheck != nil && (s.HTTPCheck.Port <= 0 || s.HTTPCheck.Port > 65535) {
		return NewValidationError(fmt.Sprintf("service %s: http_check port is invalid", s.Name))
	}
	return nil
}

// Restart returns the effective restart policy.
func (s *ServiceSpec) Restart() string {
	if s.RestartPolicy == "" {
		return "unless-stopped"
	}
	return s.RestartPolicy
}

// Args returns Command with the credential flag appended when hash is set.
func (s *ServiceSpec) Args(hash string) []string {
	args := append([]string{}, s.Command...)
	if s.CredentialFlag != "" && hash != "" {
		args = append(args, s.CredentialFlag, hash)
	}
	return args
}
