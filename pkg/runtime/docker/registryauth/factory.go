package registryauth

import (
	"context"
)

// Auth types.
const (
	TypeBasic            = "basic"
	TypeToken            = "token"
	TypeDockerConfigJSON = "dockerconfigjson"
	TypeECR              = "ecr"
)

// RegistryConfig binds credentials to a registry host pattern.
type RegistryConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Registry string `mapstructure:"registry" yaml:"registry"`
	Auth     Auth   `mapstructure:"auth" yaml:"auth"`
}

// Auth holds the fields used by the provider selected by Type.
type Auth struct {
	Type             string `mapstructure:"type" yaml:"type"`
	Username         string `mapstructure:"username" yaml:"username"`
	Password         string `mapstructure:"password" yaml:"password"`
	Token            string `mapstructure:"token" yaml:"token"`
	SecretFile       string `mapstructure:"secret_file" yaml:"secret_file"`
	Region           string `mapstructure:"region" yaml:"region"`
	DockerConfigJSON string `mapstructure:"dockerconfigjson" yaml:"dockerconfigjson"`
}

// BuildProviders constructs providers from the registries configuration.
// Entries with an unknown type are skipped.
func BuildProviders(ctx context.Context, regs []RegistryConfig) []Provider {
	var out []Provider
	for _, r := range regs {
		switch r.Auth.Type {
		case TypeBasic:
			out = append(out, NewStaticProvider(StaticConfig{
				Registry:   r.Registry,
				Username:   r.Auth.Username,
				Password:   r.Auth.Password,
				SecretFile: r.Auth.SecretFile,
			}))
		case TypeToken:
			out = append(out, NewStaticProvider(StaticConfig{
				Registry:   r.Registry,
				Token:      r.Auth.Token,
				SecretFile: r.Auth.SecretFile,
			}))
		case TypeDockerConfigJSON:
			if r.Auth.DockerConfigJSON != "" {
				out = append(out, NewDockerConfigJSONProvider(r.Registry, r.Auth.DockerConfigJSON))
			}
		case TypeECR:
			out = append(out, NewECRProvider(ECRConfig{Registry: r.Registry, Region: r.Auth.Region}))
		}
	}
	return out
}
