package docker

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime"
	"time"

	"github.com/docker/docker/client"

	"github.com/mmr-tortoise/stevedore/internal/model"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// defaultPingTimeout is the maximum wait for a daemon response during
// Ping. Generous enough for Docker Desktop on macOS, which responds
// slower than native Linux.
const defaultPingTimeout = 5 * time.Second

// Client wraps the Docker SDK client and exposes the runtime surfaces
// the orchestrator consumes.
type Client struct {
	inner *client.Client
}

// NewClient creates a Docker client with automatic socket detection.
//
// Detection priority:
//  1. DOCKER_HOST environment variable, used as-is.
//  2. Platform-specific default socket paths (Linux and macOS probe
//     /var/run/docker.sock, macOS falls back to ~/.docker/run; Windows
//     dials the named pipe).
func NewClient() (*Client, error) {
	host := os.Getenv("DOCKER_HOST")
	if host == "" {
		detected, err := detectDockerHost()
		if err != nil {
			return nil, model.WrapError(model.KindInternal, err, "container runtime socket not found")
		}
		host = detected
	}

	inner, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapError(model.KindInternal, err, "create runtime client for host %q", host)
	}
	return &Client{inner: inner}, nil
}

// detectDockerHost probes known socket paths for the current platform
// and returns the first that exists. Existence is checked rather than
// connectivity; Ping verifies the daemon separately.
func detectDockerHost() (string, error) {
	switch runtime.GOOS {
	case "linux":
		return detectUnixSocket([]string{"/var/run/docker.sock"})
	case "darwin":
		paths := []string{"/var/run/docker.sock"}
		if home, err := os.UserHomeDir(); err == nil {
			paths = append(paths, home+"/.docker/run/docker.sock")
		}
		return detectUnixSocket(paths)
	case "windows":
		pipePath := `//./pipe/docker_engine`
		conn, err := net.DialTimeout("pipe", pipePath, time.Second)
		if err != nil {
			return "", fmt.Errorf("runtime named pipe not found at %s: %w", pipePath, err)
		}
		conn.Close()
		return "npipe://" + pipePath, nil
	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("runtime socket not found at any of %v — is the daemon running?", paths)
}

// Ping verifies the daemon is reachable and responsive.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if _, err := c.inner.Ping(pingCtx); err != nil {
		return model.WrapError(model.KindInternal, err, "container runtime is not responding")
	}
	return nil
}

// Close releases the underlying SDK client. Safe to call repeatedly.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}

// Runtime assembles the four adapter surfaces backed by this client.
func (c *Client) Runtime() *rt.Client {
	return &rt.Client{
		Containers: &containerClient{inner: c.inner},
		Images:     &imageClient{inner: c.inner},
		Networks:   &networkClient{inner: c.inner},
		Volumes:    &volumeClient{inner: c.inner},
	}
}
