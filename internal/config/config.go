package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/rzbill/hoist/pkg/credentials"
	"github.com/rzbill/hoist/pkg/launcher"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/runtime/docker"
	"github.com/rzbill/hoist/pkg/types"
	"github.com/rzbill/hoist/pkg/verify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override, e.g.
// HOIST_ENVIRONMENT_NETWORK.
const EnvPrefix = "HOIST"

// Credential modes.
const (
	ModeLenient = "lenient"
	ModeStrict  = "strict"
)

// Credentials configures the credential bootstrapper.
type Credentials struct {
	Username      string   `mapstructure:"username" yaml:"username"`
	Mode          string   `mapstructure:"mode" yaml:"mode"`
	Hashers       []string `mapstructure:"hashers" yaml:"hashers"`
	HelperCommand []string `mapstructure:"helper_command" yaml:"helper_command"`
	HtpasswdImage string   `mapstructure:"htpasswd_image" yaml:"htpasswd_image"`
	BcryptCost    int      `mapstructure:"bcrypt_cost" yaml:"bcrypt_cost"`
	SecretLength  int      `mapstructure:"secret_length" yaml:"secret_length"`
}

// Strict reports whether the placeholder fallback is refused.
func (c Credentials) Strict() bool {
	return strings.EqualFold(c.Mode, ModeStrict)
}

// ChainConfig converts the section into hasher chain settings.
func (c Credentials) ChainConfig() credentials.ChainConfig {
	return credentials.ChainConfig{
		Methods:       c.Hashers,
		HelperCommand: c.HelperCommand,
		HtpasswdImage: c.HtpasswdImage,
		BcryptCost:    c.BcryptCost,
		Strict:        c.Strict(),
	}
}

// State configures the deployment journal.
type State struct {
	// Backend is badger or memory.
	Backend string `mapstructure:"backend" yaml:"backend"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Config is the full hoist configuration.
type Config struct {
	Environment types.Environment   `mapstructure:"environment" yaml:"environment"`
	Service     types.ServiceSpec   `mapstructure:"service" yaml:"service"`
	Companions  []types.ServiceSpec `mapstructure:"companions" yaml:"companions"`
	Credentials Credentials         `mapstructure:"credentials" yaml:"credentials"`
	Launcher    launcher.Config     `mapstructure:"launcher" yaml:"launcher"`
	Docker      docker.Config       `mapstructure:"docker" yaml:"docker"`
	Verify      verify.Config       `mapstructure:"verify" yaml:"verify"`
	State       State               `mapstructure:"state" yaml:"state"`
	Log         log.Config          `mapstructure:"log" yaml:"log"`
}

// Default returns the built-in configuration: Portainer CE with its admin
// password passed as a bcrypt hash, plus a watchtower companion.
func Default() *Config {
	baseDir := defaultBaseDir()
	return &Config{
		Environment: types.Environment{
			Name:    "default",
			BaseDir: baseDir,
			Network: "hoist",
		},
		Service: types.ServiceSpec{
			Name:    "portainer",
			Image:   "portainer/portainer-ce:latest",
			Command: []string{"-H", "unix:///var/run/docker.sock"},
			Ports: []types.PortMapping{
				{Host: 8000, Container: 8000},
				{Host: 9443, Container: 9443},
			},
			Volumes: []types.VolumeMount{
				{Source: types.DataDirName, Target: "/data"},
				{Source: "/var/run/docker.sock", Target: "/var/run/docker.sock"},
			},
			CredentialFlag: "--admin-password",
			HTTPCheck:      &types.HTTPCheck{Scheme: "https", Port: 9443, Path: "/"},
		},
		Companions: []types.ServiceSpec{
			{
				Name:  "watchtower",
				Image: "containrrr/watchtower:latest",
				Volumes: []types.VolumeMount{
					{Source: "/var/run/docker.sock", Target: "/var/run/docker.sock"},
				},
				Env: map[string]string{
					"WATCHTOWER_POLL_INTERVAL": "86400",
					"WATCHTOWER_CLEANUP":       "true",
				},
			},
		},
		Credentials: Credentials{
			Username:      credentials.DefaultUsername,
			Mode:          ModeLenient,
			Hashers:       append([]string{}, credentials.DefaultMethods...),
			HelperCommand: append([]string{}, credentials.DefaultHelperCommand...),
			HtpasswdImage: credentials.DefaultHtpasswdImage,
			SecretLength:  credentials.DefaultSecretLength,
		},
		Launcher: launcher.DefaultConfig(),
		Docker:   *docker.DefaultConfig(),
		Verify:   verify.DefaultConfig(),
		State: State{
			Backend: "badger",
			Path:    filepath.Join(baseDir, ".hoist", "state"),
		},
		Log: *log.DefaultConfig(),
	}
}

func defaultBaseDir() string {
	if st, err := os.Stat("/opt"); err == nil && st.IsDir() && os.Geteuid() == 0 {
		return "/opt/hoist"
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return "./hoist"
	}
	return filepath.Join(home, "hoist")
}

// Load reads the configuration from path, or from hoist.yaml in the working
// directory or /etc/hoist/ when path is empty. A missing default file is not
// an error. HOIST_* environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hoist")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hoist/")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	// Lists and maps from the file replace the defaults instead of merging
	// into them.
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) { dc.ZeroFields = true }); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := overlayEnv(v.ConfigFileUsed(), cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envSections mirrors the parts of the file that carry container env maps.
type envSections struct {
	Service struct {
		Env map[string]string `yaml:"env"`
	} `yaml:"service"`
	Companions []struct {
		Name string            `yaml:"name"`
		Env  map[string]string `yaml:"env"`
	} `yaml:"companions"`
}

// overlayEnv re-reads the env maps from the config file. Viper lowercases
// map keys, and env names are passed to containers verbatim.
func overlayEnv(path string, cfg *Config) error {
	if path == "" {
		return nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	var sections envSections
	if err := yaml.Unmarshal(raw, &sections); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	if sections.Service.Env != nil {
		cfg.Service.Env = sections.Service.Env
	}
	for _, c := range sections.Companions {
		if c.Env == nil {
			continue
		}
		for i := range cfg.Companions {
			if cfg.Companions[i].Name == c.Name {
				cfg.Companions[i].Env = c.Env
			}
		}
	}
	return nil
}

// setDefaults registers scalar keys so environment overrides reach them.
func setDefaults(v *viper.Viper, cfg *Config) {
	defaults := map[string]interface{}{
		"environment.name":     cfg.Environment.Name,
		"environment.base_dir": cfg.Environment.BaseDir,
		"environment.network":  cfg.Environment.Network,

		"service.name":            cfg.Service.Name,
		"service.image":           cfg.Service.Image,
		"service.credential_flag": cfg.Service.CredentialFlag,
		"service.restart_policy":  cfg.Service.RestartPolicy,
		"service.gpu":             cfg.Service.GPU,

		"credentials.username":       cfg.Credentials.Username,
		"credentials.mode":           cfg.Credentials.Mode,
		"credentials.hashers":        cfg.Credentials.Hashers,
		"credentials.helper_command": cfg.Credentials.HelperCommand,
		"credentials.htpasswd_image": cfg.Credentials.HtpasswdImage,
		"credentials.bcrypt_cost":    cfg.Credentials.BcryptCost,
		"credentials.secret_length":  cfg.Credentials.SecretLength,

		"launcher.mechanism":       cfg.Launcher.Mechanism,
		"launcher.runtime_binary":  cfg.Launcher.RuntimeBinary,
		"launcher.compose_command": cfg.Launcher.ComposeCommand,
		"launcher.settle_delay":    cfg.Launcher.SettleDelay,
		"launcher.poll_interval":   cfg.Launcher.PollInterval,
		"launcher.ready_timeout":   cfg.Launcher.ReadyTimeout,
		"launcher.stop_timeout":    cfg.Launcher.StopTimeout,

		"docker.api_version":                 cfg.Docker.APIVersion,
		"docker.fallback_api_version":        cfg.Docker.FallbackAPIVersion,
		"docker.negotiation_timeout_seconds": cfg.Docker.NegotiationTimeoutSeconds,

		"verify.runtime_binary":      cfg.Verify.RuntimeBinary,
		"verify.host":                cfg.Verify.Host,
		"verify.http_timeout":        cfg.Verify.HTTPTimeout,
		"verify.insecure_tls":        cfg.Verify.InsecureTLS,
		"verify.require_credentials": cfg.Verify.RequireCredentials,

		"state.backend": cfg.State.Backend,
		"state.path":    cfg.State.Path,

		"log.level":  cfg.Log.Level,
		"log.format": cfg.Log.Format,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Validate checks the configuration as a whole.
func (c *Config) Validate() error {
	if err := c.Environment.Validate(); err != nil {
		return err
	}
	if err := c.Service.Validate(); err != nil {
		return err
	}
	seen := map[string]bool{c.Service.Name: true}
	for i := range c.Companions {
		comp := &c.Companions[i]
		if err := comp.Validate(); err != nil {
			return types.WrapValidationError(err, "companions[%d]", i)
		}
		if seen[comp.Name] {
			return types.NewValidationError(fmt.Sprintf("companions[%d]: duplicate service name %q", i, comp.Name))
		}
		seen[comp.Name] = true
	}

	switch strings.ToLower(c.Credentials.Mode) {
	case ModeLenient, ModeStrict:
	default:
		return types.NewValidationError(fmt.Sprintf("credentials.mode must be %s or %s, got %q", ModeLenient, ModeStrict, c.Credentials.Mode))
	}
	if c.Credentials.SecretLength < 8 {
		return types.NewValidationError("credentials.secret_length must be at least 8")
	}

	switch c.Launcher.Mechanism {
	case launcher.MechanismAuto, launcher.MechanismCompose, launcher.MechanismDirect:
	default:
		return types.NewValidationError(fmt.Sprintf("launcher.mechanism must be auto, compose or direct, got %q", c.Launcher.Mechanism))
	}
	if c.Launcher.SettleDelay < 0 || c.Launcher.PollInterval <= 0 || c.Launcher.ReadyTimeout <= 0 {
		return types.NewValidationError("launcher timings must be positive")
	}
	if c.Verify.HTTPTimeout < 0 || c.Verify.HTTPTimeout > 5*time.Minute {
		return types.NewValidationError("verify.http_timeout must be between 0 and 5m")
	}

	switch c.State.Backend {
	case "badger":
		if c.State.Path == "" {
			return types.NewValidationError("state.path is required for the badger backend")
		}
	case "memory":
	default:
		return types.NewValidationError(fmt.Sprintf("state.backend must be badger or memory, got %q", c.State.Backend))
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return types.WrapValidationError(err, "log.level")
	}
	return nil
}

// ArtifactPaths returns the main service's artifact layout.
func (c *Config) ArtifactPaths() types.ArtifactPaths {
	return c.Environment.Artifacts(c.Service.Name)
}
