package docker

import (
	"context"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// defaultNetworkName is the engine-managed network services join when
// they declare no attachments.
const defaultNetworkName = "bridge"

// networkClient implements rt.NetworkClient on the Docker SDK. The
// runtime's NAT mode maps to the bridge driver.
type networkClient struct {
	inner *client.Client
}

func (c *networkClient) Create(ctx context.Context, id string, mode rt.NetworkMode) (rt.NetworkInfo, error) {
	_, err := c.inner.NetworkCreate(ctx, id, network.CreateOptions{Driver: "bridge"})
	if err != nil {
		return rt.NetworkInfo{}, wrapSDKError(err, "create network %q", id)
	}
	return rt.NetworkInfo{ID: id}, nil
}

func (c *networkClient) Get(ctx context.Context, id string) (rt.NetworkInfo, error) {
	if _, err := c.inner.NetworkInspect(ctx, id, network.InspectOptions{}); err != nil {
		return rt.NetworkInfo{}, wrapSDKError(err, "inspect network %q", id)
	}
	return rt.NetworkInfo{ID: id}, nil
}

func (c *networkClient) Delete(ctx context.Context, id string) error {
	err := c.inner.NetworkRemove(ctx, id)
	return wrapSDKError(err, "remove network %q", id)
}

func (c *networkClient) Default(ctx context.Context) (rt.NetworkInfo, error) {
	return c.Get(ctx, defaultNetworkName)
}

var _ rt.NetworkClient = (*networkClient)(nil)
