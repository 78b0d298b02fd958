package registryauth

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// StaticConfig is a fixed credential for one registry pattern. The secret is
// Password, Token, or the trimmed contents of SecretFile, in that order.
type StaticConfig struct {
	Registry   string
	Username   string
	Password   string
	Token      string
	SecretFile string
}

// StaticProvider serves basic or bearer-token credentials.
type StaticProvider struct {
	cfg StaticConfig
}

func NewStaticProvider(cfg StaticConfig) *StaticProvider {
	return &StaticProvider{cfg: cfg}
}

func (p *StaticProvider) Match(host string) bool {
	return hostMatches(p.cfg.Registry, host)
}

// Resolve returns "" when no secret is configured, leaving the pull
// anonymous. SecretFile is read on every call so rotated secrets apply.
func (p *StaticProvider) Resolve(_ context.Context, host, _ string) (string, error) {
	secret := p.cfg.Password
	if secret == "" {
		secret = p.cfg.Token
	}
	if secret == "" && p.cfg.SecretFile != "" {
		b, err := os.ReadFile(p.cfg.SecretFile)
		if err != nil {
			return "", fmt.Errorf("registry %s: failed to read secret file: %w", p.cfg.Registry, err)
		}
		secret = strings.TrimSpace(string(b))
	}
	username := p.cfg.Username
	if username == "" && secret != "" {
		username = "token"
	}
	if secret == "" {
		return "", nil
	}
	return encode(username, secret, host), nil
}
