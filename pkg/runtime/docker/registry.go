package docker

import (
	"context"

	"github.com/distribution/reference"
	"github.com/rzbill/hoist/pkg/log"
	"github.com/rzbill/hoist/pkg/runtime/docker/registryauth"
)

const dockerHubHost = "index.docker.io"

// parseImageHost returns the registry host of an image reference. Docker
// Hub images resolve to index.docker.io.
func parseImageHost(ref string) string {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return ""
	}
	host := reference.Domain(named)
	if host == "docker.io" {
		return dockerHubHost
	}
	return host
}

// resolveRegistryAuth returns the encoded RegistryAuth for ref, or "" for
// an anonymous pull.
func (e *Engine) resolveRegistryAuth(ctx context.Context, ref string) string {
	host := parseImageHost(ref)
	auth, err := registryauth.First(ctx, e.providers, host, ref)
	if err != nil {
		e.logger.Warn("Registry auth lookup failed, pulling anonymously", log.Str("registry", host), log.Err(err))
		return ""
	}
	return auth
}
