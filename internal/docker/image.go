package docker

import (
	"context"
	"io"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// imageClient implements rt.ImageClient on the Docker SDK.
type imageClient struct {
	inner *client.Client
}

func (c *imageClient) Get(ctx context.Context, ref string) (rt.Image, error) {
	if _, err := c.inner.ImageInspect(ctx, ref); err != nil {
		return rt.Image{}, wrapSDKError(err, "inspect image %q", ref)
	}
	return rt.Image{Reference: ref}, nil
}

func (c *imageClient) Fetch(ctx context.Context, ref string) (rt.Image, error) {
	reader, err := c.inner.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return rt.Image{}, wrapSDKError(err, "pull image %q", ref)
	}
	// The pull stream must be drained for the operation to complete.
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return rt.Image{}, wrapSDKError(err, "pull image %q", ref)
	}
	return rt.Image{Reference: ref}, nil
}

func (c *imageClient) Config(ctx context.Context, ref string) (rt.ImageConfig, error) {
	info, err := c.inner.ImageInspect(ctx, ref)
	if err != nil {
		return rt.ImageConfig{}, wrapSDKError(err, "inspect image %q", ref)
	}
	config := rt.ImageConfig{}
	if info.Config != nil {
		config.Entrypoint = info.Config.Entrypoint
		config.Cmd = info.Config.Cmd
		config.WorkingDir = info.Config.WorkingDir
	}
	return config, nil
}

var _ rt.ImageClient = (*imageClient)(nil)
