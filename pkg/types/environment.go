package types

import (
	"path/filepath"
	"regexp"
)

// Labels applied to every container and network hoist creates.
const (
	LabelManaged     = "hoist.managed"
	LabelEnvironment = "hoist.environment"
	LabelService     = "hoist.service"
)

// Artifact file names inside a service directory.
const (
	PlaintextFileName = "admin_password.txt"
	HashFileName      = "portainer_password"
	ComposeFileName   = "docker-compose.yml"
	DataDirName       = "data"
)

// WrapperScripts are the lifecycle scripts emitted next to each service.
var WrapperScripts = []string{"start.sh", "stop.sh", "restart.sh", "logs.sh"}

var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// Environment is the deployment context every operation receives. It owns
// the identifiers that would otherwise be global strings: where artifacts
// live, which network services join, and how owned resources are labelled.
type Environment struct {
	// Name identifies the environment; it is stamped on every owned resource.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// BaseDir holds one directory per service.
	BaseDir string `json:"baseDir" yaml:"base_dir" mapstructure:"base_dir"`

	// Network is the shared network services join.
	Network string `json:"network" yaml:"network" mapstructure:"network"`
}

// Validate checks that the environment can be used to name resources.
func (e *Environment) Validate() error {
	if e.Name == "" {
		return NewValidationError("environment name is required")
	}
	if !namePattern.MatchString(e.Name) {
		return NewValidationError("environment name must match " + namePattern.String())
	}
	if e.BaseDir == "" {
		return NewValidationError("environment base_dir is required")
	}
	if e.Network == "" {
		return NewValidationError("environment network is required")
	}
	if !namePattern.MatchString(e.Network) {
		return NewValidationError("network name must match " + namePattern.String())
	}
	return nil
}

// Labels returns the ownership labels for a resource belonging to service.
// An empty service yields environment-level labels only.
func (e *Environment) Labels(service string) map[string]string {
	labels := map[string]string{
		LabelManaged:     "true",
		LabelEnvironment: e.Name,
	}
	if service != "" {
		labels[LabelService] = service
	}
	return labels
}

// Artifacts returns the on-disk layout for service.
func (e *Environment) Artifacts(service string) ArtifactPaths {
	dir := filepath.Join(e.BaseDir, service)
	scripts := make(map[string]string, len(WrapperScripts))
	for _, s := range WrapperScripts {
		scripts[s] = filepath.Join(dir, s)
	}
	return ArtifactPaths{
		Dir:       dir,
		Plaintext: filepath.Join(dir, PlaintextFileName),
		Hash:      filepath.Join(dir, HashFileName),
		Data:      filepath.Join(dir, DataDirName),
		Compose:   filepath.Join(dir, ComposeFileName),
		Scripts:   scripts,
	}
}

// ArtifactPaths is the file layout of one deployed service.
type ArtifactPaths struct {
	Dir       string
	Plaintext string
	Hash      string
	Data      string
	Compose   string
	Scripts   map[string]string
}

// ValidName reports whether s is usable as a container or network name.
func ValidName(s string) bool {
	return namePattern.MatchString(s)
}
