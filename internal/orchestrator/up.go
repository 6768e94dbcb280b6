package orchestrator

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mmr-tortoise/stevedore/internal/model"
	"github.com/mmr-tortoise/stevedore/internal/resolver"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// UpOptions control one up invocation.
type UpOptions struct {
	// Selected restricts the run to these services (plus dependencies
	// unless NoDeps). Empty means every service.
	Selected []string

	Detach        bool
	ForceRecreate bool
	NoRecreate    bool
	NoDeps        bool
	RemoveOrphans bool
	RemoveOnExit  bool
	Pull          PullPolicy

	// Wait blocks until services are healthy (or running, for services
	// without a healthcheck) under one shared deadline.
	Wait        bool
	WaitTimeout time.Duration

	DisableHealthcheck bool
}

// Up materializes the project: networks, images, orphan cleanup, then
// containers in dependency order under the declared readiness gates.
// Failure of any service fails the whole up; services already started
// are not rolled back.
func (o *Orchestrator) Up(ctx context.Context, project *model.Project, opts UpOptions) error {
	o.purgeStaleState()

	services := project.Services
	if len(opts.Selected) > 0 {
		if opts.NoDeps {
			services = make(map[string]*model.Service, len(opts.Selected))
			for _, name := range opts.Selected {
				svc, ok := project.Services[name]
				if !ok {
					return model.ErrNotFound("service %q", name)
				}
				services[name] = svc
			}
			// Dependencies outside the selection are neither started
			// nor waited on.
			services = pruneExternalDeps(services)
		} else {
			services = resolver.FilterWithDependencies(project.Services, opts.Selected)
			if len(services) == 0 {
				return model.ErrNotFound("none of the requested services exist: %s", strings.Join(opts.Selected, ", "))
			}
		}
	}

	if err := o.ensureNetworks(ctx, project); err != nil {
		return err
	}

	if err := o.buildImages(ctx, project, services); err != nil {
		return err
	}

	if opts.RemoveOrphans {
		if err := o.removeOrphans(ctx, project); err != nil {
			o.log.Warn("orphan removal failed", "project", project.Name, "error", err)
		}
	}

	order, err := resolver.Resolve(services)
	if err != nil {
		return err
	}

	for _, group := range order.ParallelGroups {
		eg, groupCtx := errgroup.WithContext(ctx)
		for _, name := range group {
			svc := services[name]
			eg.Go(func() error {
				if err := o.waitForDependencies(groupCtx, project, svc, opts); err != nil {
					return err
				}
				return o.reconcileService(groupCtx, project, svc, opts)
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}

	if opts.Wait {
		timeout := opts.WaitTimeout
		if timeout <= 0 {
			timeout = defaultWaitTimeout
		}
		waitCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := o.waitForReady(waitCtx, project, services, opts); err != nil {
			return err
		}
	}
	return nil
}

// pruneExternalDeps returns service copies whose dependency lists are
// restricted to services present in the map, so a no-deps selection
// neither orders around nor waits on excluded services.
func pruneExternalDeps(services map[string]*model.Service) map[string]*model.Service {
	keep := func(deps []string) []string {
		var out []string
		for _, dep := range deps {
			if _, ok := services[dep]; ok {
				out = append(out, dep)
			}
		}
		return out
	}
	out := make(map[string]*model.Service, len(services))
	for name, svc := range services {
		pruned := *svc
		pruned.DependsOn = keep(svc.DependsOn)
		pruned.DependsOnHealthy = keep(svc.DependsOnHealthy)
		pruned.DependsOnStarted = keep(svc.DependsOnStarted)
		pruned.DependsOnCompletedSuccessfully = keep(svc.DependsOnCompletedSuccessfully)
		out[name] = &pruned
	}
	return out
}

// waitForDependencies blocks until every declared readiness gate of the
// service's dependencies holds.
func (o *Orchestrator) waitForDependencies(ctx context.Context, project *model.Project, svc *model.Service, opts UpOptions) error {
	for _, dep := range svc.DependsOnStarted {
		if err := o.waitStarted(ctx, project, dep); err != nil {
			return err
		}
	}
	if !opts.DisableHealthcheck {
		for _, dep := range svc.DependsOnHealthy {
			target, ok := project.Services[dep]
			if !ok {
				return model.ErrNotFound("service %q", dep)
			}
			if err := o.waitHealthy(ctx, project, target); err != nil {
				return err
			}
		}
	}
	for _, dep := range svc.DependsOnCompletedSuccessfully {
		if err := o.waitCompleted(ctx, project, dep); err != nil {
			return err
		}
	}
	return nil
}

// waitStarted polls until the dependency's container exists and reports
// the running status.
func (o *Orchestrator) waitStarted(ctx context.Context, project *model.Project, dep string) error {
	target, ok := project.Services[dep]
	if !ok {
		return model.ErrNotFound("service %q", dep)
	}
	containerID := project.ContainerID(target)

	deadline := time.Now().Add(startedWaitTimeout)
	for {
		summary, err := o.runtime.Containers.Get(ctx, containerID)
		if err == nil && summary.Status == rt.StatusRunning {
			return nil
		}
		if err != nil && !model.IsNotFound(err) {
			return err
		}
		if time.Now().After(deadline) {
			return model.ErrTimeout("service %q did not start within %s", dep, startedWaitTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dependencyPollInterval):
		}
	}
}

// waitCompleted polls until the dependency's container disappears from
// the runtime listing. Best effort: the adapter surface exposes no exit
// status, so disappearance stands in for successful completion.
func (o *Orchestrator) waitCompleted(ctx context.Context, project *model.Project, dep string) error {
	target, ok := project.Services[dep]
	if !ok {
		return model.ErrNotFound("service %q", dep)
	}
	containerID := project.ContainerID(target)

	deadline := time.Now().Add(completedWaitTimeout)
	for {
		_, err := o.runtime.Containers.Get(ctx, containerID)
		if model.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return model.ErrTimeout("service %q did not complete within %s", dep, completedWaitTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(dependencyPollInterval):
		}
	}
}

// waitForReady implements --wait: services with a healthcheck wait for
// health, the rest wait for the running status, all under the caller's
// single deadline.
func (o *Orchestrator) waitForReady(ctx context.Context, project *model.Project, services map[string]*model.Service, opts UpOptions) error {
	eg, egCtx := errgroup.WithContext(ctx)
	for _, name := range sortedKeys(services) {
		svc := services[name]
		eg.Go(func() error {
			if svc.HealthCheck != nil && !opts.DisableHealthcheck {
				return o.waitHealthy(egCtx, project, svc)
			}
			return o.waitRunning(egCtx, project, svc)
		})
	}
	if err := eg.Wait(); err != nil {
		if egCtx.Err() == context.DeadlineExceeded {
			return model.ErrTimeout("project %q did not become ready", project.Name)
		}
		return err
	}
	return nil
}

// waitRunning polls until the service's container reports running,
// bounded only by the surrounding context.
func (o *Orchestrator) waitRunning(ctx context.Context, project *model.Project, svc *model.Service) error {
	containerID := project.ContainerID(svc)
	for {
		summary, err := o.runtime.Containers.Get(ctx, containerID)
		if err != nil && !model.IsNotFound(err) {
			return err
		}
		if err == nil && summary.Status == rt.StatusRunning {
			return nil
		}
		select {
		case <-ctx.Done():
			return model.WrapError(model.KindTimeout, ctx.Err(), "waiting for service %q to run", svc.Name)
		case <-time.After(dependencyPollInterval):
		}
	}
}

// projectContainers lists every runtime container; containersOf narrows
// the listing to one project.
func (o *Orchestrator) projectContainers(ctx context.Context) ([]rt.ContainerSummary, error) {
	return o.runtime.Containers.List(ctx)
}

// containersOf filters a listing down to the project's containers,
// matching by label first and falling back to the "<project>_" name
// prefix for containers created without labels.
func containersOf(project *model.Project, all []rt.ContainerSummary) []rt.ContainerSummary {
	var out []rt.ContainerSummary
	for _, summary := range all {
		if summary.Labels[LabelProject] == project.Name ||
			strings.HasPrefix(summary.ID, project.Name+"_") {
			out = append(out, summary)
		}
	}
	return out
}

// serviceOf extracts the service name a container realizes, from its
// label when present, else from its "<project>_<service>" name.
func serviceOf(project *model.Project, summary rt.ContainerSummary) string {
	if name, ok := summary.Labels[LabelService]; ok && name != "" {
		return name
	}
	return strings.TrimPrefix(summary.ID, project.Name+"_")
}

// removeOrphans deletes project containers whose service no longer
// exists in the current definition. Best effort.
func (o *Orchestrator) removeOrphans(ctx context.Context, project *model.Project) error {
	all, err := o.projectContainers(ctx)
	if err != nil {
		return err
	}
	for _, summary := range containersOf(project, all) {
		service := serviceOf(project, summary)
		if _, ok := project.Services[service]; ok {
			continue
		}
		o.log.Info("removing orphan container", "container", summary.ID, "project", project.Name)
		if err := o.removeContainer(ctx, summary.ID); err != nil {
			o.log.Warn("orphan removal failed", "container", summary.ID, "error", err)
		}
	}
	return nil
}
