package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmr-tortoise/stevedore/internal/model"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// DownOptions control teardown.
type DownOptions struct {
	// RemoveVolumes also deletes the project's managed volumes,
	// including anonymous ones labeled by the project.
	RemoveVolumes bool
	// RemoveOrphans extends the container match to the name-prefix
	// fallback so label-less strays are collected too.
	RemoveOrphans bool
}

// DownResult reports what a teardown removed.
type DownResult struct {
	Containers []string
	Volumes    []string
}

// Down stops and deletes every project container, then removes managed
// volumes and networks as requested. A failure to list containers is
// returned; every later step is best effort: failures log warnings and
// the teardown continues.
func (o *Orchestrator) Down(ctx context.Context, project *model.Project, opts DownOptions) (*DownResult, error) {
	all, err := o.projectContainers(ctx)
	if err != nil {
		return nil, err
	}

	result := &DownResult{}
	for _, summary := range containersOf(project, all) {
		if !opts.RemoveOrphans && summary.Labels[LabelProject] != project.Name {
			continue
		}
		o.log.Info("removing container", "container", summary.ID, "project", project.Name)
		if err := o.removeContainer(ctx, summary.ID); err != nil {
			o.log.Warn("container removal failed", "container", summary.ID, "error", err)
			continue
		}
		result.Containers = append(result.Containers, summary.ID)
	}

	if opts.RemoveVolumes {
		result.Volumes = o.removeProjectVolumes(ctx, project)
	}

	o.removeProjectNetworks(ctx, project)
	o.forgetProject(project.Name)
	return result, nil
}

// removeProjectVolumes deletes every non-external declared volume plus
// every runtime volume labeled to this project as anonymous.
func (o *Orchestrator) removeProjectVolumes(ctx context.Context, project *model.Project) []string {
	var removed []string
	for _, name := range sortedKeys(project.Volumes) {
		decl := project.Volumes[name]
		if decl.External {
			continue
		}
		runtimeName := volumeNameSanitizer.ReplaceAllString(project.Name+"_"+name, "_")
		if err := o.runtime.Volumes.Delete(ctx, runtimeName); err != nil {
			if !model.IsNotFound(err) {
				o.log.Warn("volume removal failed", "volume", runtimeName, "error", err)
			}
			continue
		}
		removed = append(removed, runtimeName)
	}

	listed, err := o.runtime.Volumes.List(ctx)
	if err != nil {
		o.log.Warn("volume listing failed", "project", project.Name, "error", err)
		return removed
	}
	for _, record := range listed {
		if record.Labels[LabelProject] != project.Name {
			continue
		}
		if record.Labels[LabelVolumeAnonymous] != "true" {
			continue
		}
		if err := o.runtime.Volumes.Delete(ctx, record.Name); err != nil {
			if !model.IsNotFound(err) {
				o.log.Warn("volume removal failed", "volume", record.Name, "error", err)
			}
			continue
		}
		removed = append(removed, record.Name)
	}
	return removed
}

// removeProjectNetworks deletes every non-external project network.
func (o *Orchestrator) removeProjectNetworks(ctx context.Context, project *model.Project) {
	for _, name := range sortedKeys(project.Networks) {
		network := project.Networks[name]
		if network.External {
			continue
		}
		id := project.NetworkID(name)
		if err := o.runtime.Networks.Delete(ctx, id); err != nil && !model.IsNotFound(err) {
			o.log.Warn("network removal failed", "network", id, "error", err)
		}
	}
}

// PsRow is one line of ps output.
type PsRow struct {
	Service string `json:"service"`
	ID      string `json:"id"`
	Image   string `json:"image"`
	Status  string `json:"status"`
	Ports   string `json:"ports"`
}

// Ps lists the project's containers.
func (o *Orchestrator) Ps(ctx context.Context, project *model.Project) ([]PsRow, error) {
	all, err := o.projectContainers(ctx)
	if err != nil {
		return nil, err
	}
	var rows []PsRow
	for _, summary := range containersOf(project, all) {
		ports := make([]string, 0, len(summary.Ports))
		for _, port := range summary.Ports {
			ports = append(ports, port.Key())
		}
		rows = append(rows, PsRow{
			Service: serviceOf(project, summary),
			ID:      shortID(summary.ID),
			Image:   summary.Image,
			Status:  summary.Status,
			Ports:   strings.Join(ports, ", "),
		})
	}
	return rows, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// Stop tears the project's containers down, best effort, leaving
// volumes in place.
func (o *Orchestrator) Stop(ctx context.Context, project *model.Project) error {
	_, err := o.Down(ctx, project, DownOptions{})
	return err
}

// Start brings the project up with default options.
func (o *Orchestrator) Start(ctx context.Context, project *model.Project) error {
	return o.Up(ctx, project, UpOptions{Detach: true, Pull: PullMissing})
}

// Restart tears the project down and brings it back up.
func (o *Orchestrator) Restart(ctx context.Context, project *model.Project) error {
	if err := o.Stop(ctx, project); err != nil {
		return err
	}
	return o.Start(ctx, project)
}

// RemoveOptions control the rm operation.
type RemoveOptions struct {
	// Services restricts removal; empty means every project container.
	Services []string
	// Force removes running containers too.
	Force bool
}

// Remove deletes stopped project containers. Running containers are
// skipped with a warning unless forced.
func (o *Orchestrator) Remove(ctx context.Context, project *model.Project, opts RemoveOptions) ([]string, error) {
	all, err := o.projectContainers(ctx)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(opts.Services))
	for _, name := range opts.Services {
		wanted[name] = struct{}{}
	}

	var removed []string
	for _, summary := range containersOf(project, all) {
		service := serviceOf(project, summary)
		if len(wanted) > 0 {
			if _, ok := wanted[service]; !ok {
				continue
			}
		}
		if summary.Status == rt.StatusRunning && !opts.Force {
			o.log.Warn("skipping running container (use --force)", "container", summary.ID, "service", service)
			continue
		}
		if err := o.removeContainer(ctx, summary.ID); err != nil {
			return removed, fmt.Errorf("remove %s: %w", summary.ID, err)
		}
		removed = append(removed, summary.ID)
	}
	return removed, nil
}
