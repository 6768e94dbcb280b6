package orchestrator

import (
	"context"
	"sort"

	"github.com/mmr-tortoise/stevedore/internal/model"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// ensureNetworks prepares every declared network before containers are
// created. Only the bridge driver is supported; external networks must
// already exist, project-scoped ones are created with NAT mode when
// missing.
func (o *Orchestrator) ensureNetworks(ctx context.Context, project *model.Project) error {
	for _, name := range sortedKeys(project.Networks) {
		network := project.Networks[name]
		if network.Driver != "" && network.Driver != "bridge" {
			return model.ErrInvalidArgument("network %q: unsupported driver %q (only bridge)", name, network.Driver)
		}
		id := project.NetworkID(name)
		_, err := o.runtime.Networks.Get(ctx, id)
		if err == nil {
			continue
		}
		if !model.IsNotFound(err) {
			return err
		}
		if network.External {
			return model.ErrNotFound("external network %q", id)
		}
		o.log.Info("creating network", "network", id, "project", project.Name)
		if _, err := o.runtime.Networks.Create(ctx, id, rt.NetworkModeNAT); err != nil && !model.IsAlreadyExists(err) {
			return err
		}
	}
	return nil
}

// networkAttachments maps a service's declared networks to runtime IDs,
// preserving the declared order. A service with no declared networks
// attaches to the runtime's default network with its container ID as
// hostname.
func (o *Orchestrator) networkAttachments(ctx context.Context, project *model.Project, svc *model.Service, containerID string) ([]rt.NetworkAttachment, error) {
	if len(svc.Networks) == 0 {
		fallback, err := o.runtime.Networks.Default(ctx)
		if err != nil {
			return nil, err
		}
		return []rt.NetworkAttachment{{NetworkID: fallback.ID, Hostname: containerID}}, nil
	}
	attachments := make([]rt.NetworkAttachment, 0, len(svc.Networks))
	for _, name := range svc.Networks {
		attachments = append(attachments, rt.NetworkAttachment{
			NetworkID: project.NetworkID(name),
			Hostname:  svc.Name,
		})
	}
	return attachments, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
