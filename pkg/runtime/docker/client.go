// Package docker talks to the Docker Engine on behalf of the launcher and
// the verifier.
package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/system"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rzbill/hoist/pkg/log"
)

// dockerAPI is the subset of the Engine client hoist uses.
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	Info(ctx context.Context) (system.Info, error)
	NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error)
	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ImageInspect(ctx context.Context, imageID string, inspectOpts ...client.ImageInspectOption) (image.InspectResponse, error)
	Close() error
}

// createClientWithVersionHandling creates a Docker client with appropriate API version handling
func createClientWithVersionHandling(logger log.Logger, config *Config) (*client.Client, error) {
	if config.APIVersion != "" {
		logger.Debug("Using specified Docker API version", log.Str("api_version", config.APIVersion))
		dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithVersion(config.APIVersion))
		if err != nil {
			return nil, fmt.Errorf("failed to create Docker client with version %s: %w", config.APIVersion, err)
		}
		return dockerClient, nil
	}

	dockerClient, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	negotiationTimeout := time.Duration(config.NegotiationTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), negotiationTimeout)
	defer cancel()

	dockerClient.NegotiateAPIVersion(ctx)
	clientVersion := dockerClient.ClientVersion()
	logger.Debug("Using negotiated Docker API version", log.Str("api_version", clientVersion))

	return verifyClientCompatibility(dockerClient, clientVersion, config.FallbackAPIVersion, logger)
}

// verifyClientCompatibility pings the daemon and swaps to the fallback API
// version when the negotiated one is rejected as too new. Other ping errors
// are left for Engine.Ping to report.
func verifyClientCompatibility(dockerClient *client.Client, clientVersion, fallbackVersion string, logger log.Logger) (*client.Client, error) {
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer pingCancel()

	_, err := dockerClient.Ping(pingCtx)
	if err == nil || !isVersionMismatch(err) {
		return dockerClient, nil
	}

	logger.Warn("Docker API version mismatch, falling back to compatibility version",
		log.Str("current_version", clientVersion),
		log.Str("fallback_version", fallbackVersion),
		log.Err(err))

	_ = dockerClient.Close()
	newClient, err := client.NewClientWithOpts(client.FromEnv, client.WithVersion(fallbackVersion))
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client with fallback version %s: %w", fallbackVersion, err)
	}
	return newClient, nil
}

func isVersionMismatch(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "client version") && strings.Contains(msg, "too new")
}
