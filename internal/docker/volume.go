package docker

import (
	"context"

	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"

	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// volumeClient implements rt.VolumeClient on the Docker SDK.
type volumeClient struct {
	inner *client.Client
}

func (c *volumeClient) Create(ctx context.Context, name string, labels map[string]string) (rt.VolumeRecord, error) {
	created, err := c.inner.VolumeCreate(ctx, volume.CreateOptions{
		Name:   name,
		Labels: labels,
	})
	if err != nil {
		return rt.VolumeRecord{}, wrapSDKError(err, "create volume %q", name)
	}
	return volumeRecord(created), nil
}

func (c *volumeClient) List(ctx context.Context) ([]rt.VolumeRecord, error) {
	listed, err := c.inner.VolumeList(ctx, volume.ListOptions{})
	if err != nil {
		return nil, wrapSDKError(err, "list volumes")
	}
	out := make([]rt.VolumeRecord, 0, len(listed.Volumes))
	for _, item := range listed.Volumes {
		if item == nil {
			continue
		}
		out = append(out, volumeRecord(*item))
	}
	return out, nil
}

func (c *volumeClient) Inspect(ctx context.Context, name string) (rt.VolumeRecord, error) {
	found, err := c.inner.VolumeInspect(ctx, name)
	if err != nil {
		return rt.VolumeRecord{}, wrapSDKError(err, "inspect volume %q", name)
	}
	return volumeRecord(found), nil
}

func (c *volumeClient) Delete(ctx context.Context, name string) error {
	err := c.inner.VolumeRemove(ctx, name, false)
	return wrapSDKError(err, "remove volume %q", name)
}

func volumeRecord(v volume.Volume) rt.VolumeRecord {
	return rt.VolumeRecord{
		Name:   v.Name,
		Source: v.Mountpoint,
		Format: "ext4",
		Labels: v.Labels,
	}
}

var _ rt.VolumeClient = (*volumeClient)(nil)
