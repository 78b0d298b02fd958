package credentials

import (
	"context"
	"fmt"
	"strings"
)

// DefaultHtpasswdImage ships the htpasswd binary.
const DefaultHtpasswdImage = "httpd:2.4-alpine"

// ContainerRunner runs a throwaway container to completion and returns its
// standard output.
type ContainerRunner interface {
	RunOnce(ctx context.Context, image string, cmd []string) (string, error)
}

// HtpasswdHasher runs `htpasswd -nbB` in a throwaway container and extracts
// the hash from its `user:hash` output.
type HtpasswdHasher struct {
	runner ContainerRunner
	image  string
}

// NewHtpasswdHasher returns an HtpasswdHasher. A nil runner makes the
// hasher report ErrHasherUnavailable.
func NewHtpasswdHasher(runner ContainerRunner, image string) *HtpasswdHasher {
	if image == "" {
		image = DefaultHtpasswdImage
	}
	return &HtpasswdHasher{runner: runner, image: image}
}

// Name implements Hasher.
func (h *HtpasswdHasher) Name() string { return MethodHtpasswd }

// Hash implements Hasher.
func (h *HtpasswdHasher) Hash(ctx context.Context, username, plaintext string) (string, error) {
	if h.runner == nil {
		return "", fmt.Errorf("%w: no container runtime", ErrHasherUnavailable)
	}
	out, err := h.runner.RunOnce(ctx, h.image, []string{"htpasswd", "-nbB", username, plaintext})
	if err != nil {
		return "", err
	}
	return parseHtpasswd(out, username)
}

// parseHtpasswd extracts the hash from the first `user:hash` line.
func parseHtpasswd(out, username string) (string, error) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		user, hash, ok := strings.Cut(line, ":")
		if !ok {
			return "", fmt.Errorf("unexpected htpasswd output")
		}
		if user != username {
			return "", fmt.Errorf("htpasswd output is for user %q", user)
		}
		return hash, nil
	}
	return "", ErrEmptyHash
}
