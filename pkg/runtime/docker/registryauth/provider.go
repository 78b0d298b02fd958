// Package registryauth resolves pull credentials for private registries.
package registryauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Provider supplies the encoded RegistryAuth for images on matching hosts.
type Provider interface {
	Match(host string) bool
	Resolve(ctx context.Context, host string, imageRef string) (string, error)
}

// First returns the credential of the first matching provider that has one.
// A provider error stops the search. "" means pull anonymously.
func First(ctx context.Context, providers []Provider, host, imageRef string) (string, error) {
	if host == "" {
		return "", nil
	}
	for _, p := range providers {
		if !p.Match(host) {
			continue
		}
		auth, err := p.Resolve(ctx, host, imageRef)
		if err != nil {
			return "", err
		}
		if auth != "" {
			return auth, nil
		}
	}
	return "", nil
}

// hostMatches compares case-insensitively; a pattern containing '*' matches
// any host ending in the text after it.
func hostMatches(pattern, host string) bool {
	if pattern == "" {
		return false
	}
	i := strings.IndexByte(pattern, '*')
	if i < 0 {
		return strings.EqualFold(pattern, host)
	}
	return strings.HasSuffix(strings.ToLower(host), strings.ToLower(pattern[i+1:]))
}

// encode builds the base64 JSON the Engine API expects in
// image.PullOptions.RegistryAuth.
func encode(username, password, host string) string {
	b, _ := json.Marshal(struct {
		Username      string `json:"username"`
		Password      string `json:"password"`
		ServerAddress string `json:"serveraddress"`
	}{username, password, host})
	return base64.StdEncoding.EncodeToString(b)
}
