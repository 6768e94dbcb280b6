package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/mmr-tortoise/stevedore/internal/builder"
	"github.com/mmr-tortoise/stevedore/internal/model"
)

// effectiveImage returns the image reference a service's container will
// run: the declared image, a deterministic build tag, or "unknown"
// (unreachable while the image-or-build invariant holds).
func effectiveImage(project *model.Project, svc *model.Service) string {
	if svc.Image != "" {
		return svc.Image
	}
	if svc.Build != nil {
		return builder.ImageTag(project.Name, svc.Name, svc.Image, svc.Build)
	}
	return "unknown"
}

// buildImages builds every service that declares a build block, at most
// maxParallelBuilds at a time. Completed builds land in the cache so a
// later up with identical inputs skips the external build entirely.
func (o *Orchestrator) buildImages(ctx context.Context, project *model.Project, services map[string]*model.Service) error {
	var requests []builder.Request
	for _, name := range sortedKeys(services) {
		svc := services[name]
		if svc.Build == nil {
			continue
		}
		req := builder.Request{
			Project:    project.Name,
			Service:    name,
			Context:    svc.Build.Context,
			Dockerfile: svc.Build.Dockerfile,
			Args:       svc.Build.Args,
			Target:     svc.Build.Target,
		}
		req.Tag = builder.ImageTag(project.Name, name, svc.Image, svc.Build)
		if _, done := o.cachedBuild(req.CacheKey()); done {
			o.log.Debug("build cached", "service", name, "tag", req.Tag)
			continue
		}
		requests = append(requests, req)
	}
	if len(requests) == 0 {
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(min(maxParallelBuilds, len(requests)))
	for _, req := range requests {
		group.Go(func() error {
			if err := o.builder.Build(groupCtx, req); err != nil {
				return err
			}
			o.storeBuild(req.CacheKey(), req.Tag)
			return nil
		})
	}
	return group.Wait()
}
