package registryauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// DockerConfigJSONProvider resolves credentials from a .dockerconfigjson blob
type DockerConfigJSONProvider struct {
	registryPattern string
	rawJSON         string
}

func NewDockerConfigJSONProvider(registryPattern, raw string) *DockerConfigJSONProvider {
	return &DockerConfigJSONProvider{registryPattern: registryPattern, rawJSON: raw}
}

func (p *DockerConfigJSONProvider) Match(host string) bool {
	return hostMatches(p.registryPattern, host)
}

func (p *DockerConfigJSONProvider) Resolve(ctx context.Context, host, imageRef string) (string, error) {
	// { "auths": { "<server>": {"auth":"base64(user:pass)", "identitytoken":"..." } } }
	var dcj struct {
		Auths map[string]struct {
			Auth          string `json:"auth"`
			IdentityToken string `json:"identitytoken"`
		} `json:"auths"`
	}
	if err := json.Unmarshal([]byte(p.rawJSON), &dcj); err != nil {
		return "", fmt.Errorf("invalid dockerconfigjson: %w", err)
	}

	for key, v := range dcj.Auths {
		if key != host && !strings.Contains(key, host) {
			continue
		}
		if v.Auth != "" {
			dec, err := base64.StdEncoding.DecodeString(v.Auth)
			if err != nil {
				continue
			}
			user, pass, ok := strings.Cut(string(dec), ":")
			if !ok {
				continue
			}
			return encode(user, pass, host), nil
		}
		if v.IdentityToken != "" {
			return encode("token", v.IdentityToken, host), nil
		}
	}
	return "", nil
}
