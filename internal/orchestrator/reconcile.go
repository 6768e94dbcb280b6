package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/mmr-tortoise/stevedore/internal/model"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// reconcileService brings one service's container into line with the
// project definition: reuse when the configuration fingerprint matches,
// recreate otherwise, then make sure the container is running. Steps
// within one service are strictly sequential.
func (o *Orchestrator) reconcileService(ctx context.Context, project *model.Project, svc *model.Service, opts UpOptions) error {
	containerID := project.ContainerID(svc)
	image := effectiveImage(project, svc)
	expectedHash := configHash(project, svc, image)

	existing, err := o.runtime.Containers.Get(ctx, containerID)
	switch {
	case err == nil:
		reuse := opts.NoRecreate ||
			(!opts.ForceRecreate && existing.Labels[LabelConfigHash] == expectedHash)
		if reuse {
			o.log.Debug("reusing container", "container", containerID, "service", svc.Name)
			o.recordContainer(project.Name, containerRecord{
				ID: containerID, Service: svc.Name, ConfigHash: expectedHash, Reused: true,
			})
			if existing.Status != rt.StatusRunning {
				return o.runtime.Containers.Start(ctx, containerID)
			}
			return nil
		}
		o.log.Info("recreating container", "container", containerID, "service", svc.Name)
		if err := o.removeContainer(ctx, containerID); err != nil {
			return err
		}
	case model.IsNotFound(err):
		// Nothing to replace.
	default:
		return err
	}

	if err := o.ensureImage(ctx, svc, image, opts.Pull); err != nil {
		return err
	}

	config, err := o.containerConfiguration(ctx, project, svc, containerID, image, expectedHash)
	if err != nil {
		return err
	}

	o.log.Info("creating container", "container", containerID, "service", svc.Name, "image", image)
	if err := o.runtime.Containers.Create(ctx, config); err != nil {
		return err
	}
	o.recordContainer(project.Name, containerRecord{
		ID: containerID, Service: svc.Name, ConfigHash: expectedHash,
	})
	if err := o.runtime.Containers.Bootstrap(ctx, containerID); err != nil {
		return err
	}
	return o.runtime.Containers.Start(ctx, containerID)
}

// removeContainer stops a container gracefully, escalating to SIGKILL
// on timeout, then deletes it (force on retry).
func (o *Orchestrator) removeContainer(ctx context.Context, containerID string) error {
	if err := o.runtime.Containers.Stop(ctx, containerID, stopGraceTimeout); err != nil {
		if model.IsNotFound(err) {
			return nil
		}
		o.log.Warn("graceful stop failed, killing", "container", containerID, "error", err)
		if err := o.runtime.Containers.Kill(ctx, containerID, "SIGKILL"); err != nil && !model.IsNotFound(err) {
			return err
		}
		select {
		case <-time.After(killSettleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := o.runtime.Containers.Delete(ctx, containerID, false); err != nil {
		if model.IsNotFound(err) {
			return nil
		}
		return o.runtime.Containers.Delete(ctx, containerID, true)
	}
	return nil
}

// ensureImage makes the service image locally available. Built images
// must exist after the build phase; pulled images follow the policy.
func (o *Orchestrator) ensureImage(ctx context.Context, svc *model.Service, image string, policy PullPolicy) error {
	if svc.Build != nil {
		if _, err := o.runtime.Images.Get(ctx, image); err != nil {
			if model.IsNotFound(err) {
				return model.ErrNotFound("built image %q for service %q", image, svc.Name)
			}
			return err
		}
		return nil
	}

	switch policy {
	case PullAlways:
		_, err := o.runtime.Images.Fetch(ctx, image)
		return err
	case PullNever:
		_, err := o.runtime.Images.Get(ctx, image)
		return err
	default:
		if _, err := o.runtime.Images.Get(ctx, image); err == nil {
			return nil
		} else if !model.IsNotFound(err) {
			return err
		}
		_, err := o.runtime.Images.Fetch(ctx, image)
		return err
	}
}

// containerConfiguration assembles the runtime configuration for one
// service container.
func (o *Orchestrator) containerConfiguration(ctx context.Context, project *model.Project, svc *model.Service, containerID, image, hash string) (rt.ContainerConfiguration, error) {
	labels := make(map[string]string, len(svc.Labels)+4)
	for key, value := range svc.Labels {
		labels[key] = value
	}
	labels[LabelProject] = project.Name
	labels[LabelService] = svc.Name
	labels[LabelContainer] = containerID
	labels[LabelConfigHash] = hash

	attachments, err := o.networkAttachments(ctx, project, svc, containerID)
	if err != nil {
		return rt.ContainerConfiguration{}, err
	}

	mounts, err := o.resolveMounts(ctx, project, svc)
	if err != nil {
		return rt.ContainerConfiguration{}, err
	}

	exec, workDir, err := o.effectiveExec(ctx, svc, image)
	if err != nil {
		return rt.ContainerConfiguration{}, err
	}

	env := make([]string, 0, len(svc.Environment))
	for key, value := range svc.Environment {
		env = append(env, key+"="+value)
	}
	sort.Strings(env)

	cpus := svc.CPUs
	if cpus == 0 {
		cpus = defaultCPUs
	}
	memory := svc.MemoryBytes
	if memory == 0 {
		memory = defaultMemoryBytes
	}

	return rt.ContainerConfiguration{
		ID:            containerID,
		Image:         image,
		Exec:          exec,
		WorkingDir:    workDir,
		Env:           env,
		Labels:        labels,
		Networks:      attachments,
		Ports:         svc.Ports,
		Mounts:        mounts,
		CPUs:          cpus,
		MemoryBytes:   memory,
		TTY:           svc.TTY,
		OpenStdin:     svc.StdinOpen,
		RestartPolicy: svc.Restart,
	}, nil
}

// Resource defaults applied when a service declares no limits.
const (
	defaultCPUs        = 4
	defaultMemoryBytes = 2 << 30
)

// effectiveExec folds the image's entrypoint and cmd with the service
// overrides: a declared entrypoint replaces the image's (and an
// explicitly cleared one drops it), a declared command replaces the
// image cmd, and the final exec line is entrypoint followed by command.
func (o *Orchestrator) effectiveExec(ctx context.Context, svc *model.Service, image string) ([]string, string, error) {
	imageConfig, err := o.runtime.Images.Config(ctx, image)
	if err != nil && !model.IsNotFound(err) {
		return nil, "", err
	}

	entrypoint := imageConfig.Entrypoint
	switch {
	case svc.EntrypointCleared:
		entrypoint = nil
	case len(svc.Entrypoint) > 0:
		entrypoint = svc.Entrypoint
	}

	command := imageConfig.Cmd
	if len(svc.Command) > 0 {
		command = svc.Command
	}

	workDir := svc.WorkingDir
	if workDir == "" {
		workDir = imageConfig.WorkingDir
	}

	exec := make([]string, 0, len(entrypoint)+len(command))
	exec = append(exec, entrypoint...)
	exec = append(exec, command...)
	return exec, workDir, nil
}
