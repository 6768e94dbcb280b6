package orchestrator

import (
	"context"
	"time"

	"github.com/mmr-tortoise/stevedore/internal/model"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// runHealthCheck executes a service's healthcheck command once inside
// its running container and reports whether it exited zero.
func (o *Orchestrator) runHealthCheck(ctx context.Context, project *model.Project, svc *model.Service) (bool, error) {
	if svc.HealthCheck == nil || len(svc.HealthCheck.Test) == 0 {
		return false, model.ErrInvalidArgument("service %q has no healthcheck", svc.Name)
	}
	containerID := project.ContainerID(svc)

	attemptCtx := ctx
	if timeout := svc.HealthCheck.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	process, err := o.runtime.Containers.CreateProcess(attemptCtx, containerID, rt.ProcessConfig{
		Exec: svc.HealthCheck.Test,
	}, rt.Stdio{})
	if err != nil {
		return false, err
	}
	if err := process.Start(attemptCtx); err != nil {
		return false, err
	}
	code, err := process.Wait(attemptCtx)
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

// waitHealthy polls a service's healthcheck until it passes: an initial
// start-period sleep, then up to the configured retries spaced by the
// configured interval.
func (o *Orchestrator) waitHealthy(ctx context.Context, project *model.Project, svc *model.Service) error {
	hc := svc.HealthCheck
	if hc == nil {
		// Without a healthcheck the best available signal is running.
		return o.waitRunning(ctx, project, svc)
	}

	interval := hc.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	retries := hc.Retries
	if retries <= 0 {
		retries = defaultHealthRetries
	}

	if hc.StartPeriod > 0 {
		select {
		case <-ctx.Done():
			return model.WrapError(model.KindTimeout, ctx.Err(), "waiting for service %q health", svc.Name)
		case <-time.After(hc.StartPeriod):
		}
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return model.WrapError(model.KindTimeout, ctx.Err(), "waiting for service %q health", svc.Name)
			case <-time.After(interval):
			}
		}
		healthy, err := o.runHealthCheck(ctx, project, svc)
		if err != nil {
			// The container may not be running yet; keep polling.
			lastErr = err
			continue
		}
		if healthy {
			return nil
		}
	}
	if lastErr != nil {
		return model.WrapError(model.KindTimeout, lastErr, "service %q never became healthy", svc.Name)
	}
	return model.ErrTimeout("service %q never became healthy after %d attempts", svc.Name, retries)
}

// CheckHealth runs each requested service's healthcheck once. Services
// without a healthcheck report healthy when their container is running.
func (o *Orchestrator) CheckHealth(ctx context.Context, project *model.Project, services []string) (map[string]bool, error) {
	names := services
	if len(names) == 0 {
		names = project.ServiceNames()
	}
	result := make(map[string]bool, len(names))
	for _, name := range names {
		svc, ok := project.Services[name]
		if !ok {
			return nil, model.ErrNotFound("service %q", name)
		}
		if svc.HealthCheck == nil {
			summary, err := o.runtime.Containers.Get(ctx, project.ContainerID(svc))
			result[name] = err == nil && summary.Status == rt.StatusRunning
			continue
		}
		healthy, err := o.runHealthCheck(ctx, project, svc)
		if err != nil {
			o.log.Warn("healthcheck failed to run", "service", name, "error", err)
			healthy = false
		}
		result[name] = healthy
	}
	return result, nil
}
