package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"

	"github.com/mmr-tortoise/stevedore/internal/model"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// volumeNameSanitizer strips characters the runtime rejects in volume
// names.
var volumeNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// volumeRuntimeName computes the runtime name of a volume mount's
// backing volume: the external name for declared external volumes, the
// project-scoped name for named volumes, and a deterministic
// "<project>_<service>_anon_<12 hex>" for anonymous mounts.
func volumeRuntimeName(project *model.Project, svc *model.Service, mount model.VolumeMount) string {
	if mount.Anonymous() {
		sum := sha256.Sum256([]byte(mount.Target))
		name := fmt.Sprintf("%s_%s_anon_%s", project.Name, svc.Name, hex.EncodeToString(sum[:])[:12])
		return volumeNameSanitizer.ReplaceAllString(name, "_")
	}
	if decl, ok := project.Volumes[mount.Source]; ok && decl.External {
		return decl.Name
	}
	return volumeNameSanitizer.ReplaceAllString(project.Name+"_"+mount.Source, "_")
}

// resolveMounts turns a service's normalized volume mounts into runtime
// mounts, creating managed volumes on first use. Volume creation is
// idempotent: inspect first, create when absent, fail only when an
// external volume is missing.
func (o *Orchestrator) resolveMounts(ctx context.Context, project *model.Project, svc *model.Service) ([]rt.Mount, error) {
	mounts := make([]rt.Mount, 0, len(svc.Volumes))
	for _, mount := range svc.Volumes {
		switch mount.Type {
		case model.MountTypeBind:
			mounts = append(mounts, rt.Mount{
				Kind:     rt.MountBind,
				Source:   mount.Source,
				Target:   mount.Target,
				ReadOnly: mount.ReadOnly,
			})
		case model.MountTypeTmpfs:
			mounts = append(mounts, rt.Mount{
				Kind:   rt.MountTmpfs,
				Target: mount.Target,
			})
		case model.MountTypeVolume:
			resolved, err := o.ensureVolume(ctx, project, svc, mount)
			if err != nil {
				return nil, err
			}
			mounts = append(mounts, rt.Mount{
				Kind:     rt.MountVolume,
				Source:   resolved.Name,
				Target:   mount.Target,
				ReadOnly: mount.ReadOnly,
			})
		default:
			return nil, model.ErrInvalidArgument("service %q: unsupported mount type %q", svc.Name, mount.Type)
		}
	}
	return mounts, nil
}

// ensureVolume inspects the mount's backing volume and creates it when
// absent. Externally declared volumes must already exist.
func (o *Orchestrator) ensureVolume(ctx context.Context, project *model.Project, svc *model.Service, mount model.VolumeMount) (rt.VolumeRecord, error) {
	name := volumeRuntimeName(project, svc, mount)
	external := false
	if decl, ok := project.Volumes[mount.Source]; ok {
		external = decl.External
	}

	record, err := o.runtime.Volumes.Inspect(ctx, name)
	if err == nil {
		return record, nil
	}
	if !model.IsNotFound(err) {
		return rt.VolumeRecord{}, err
	}
	if external {
		return rt.VolumeRecord{}, model.ErrNotFound("external volume %q for service %q", name, svc.Name)
	}

	labels := map[string]string{
		LabelProject:         project.Name,
		LabelService:         svc.Name,
		LabelVolumeTarget:    mount.Target,
		LabelVolumeAnonymous: strconv.FormatBool(mount.Anonymous()),
	}
	o.log.Info("creating volume", "volume", name, "project", project.Name, "service", svc.Name)
	created, err := o.runtime.Volumes.Create(ctx, name, labels)
	if err != nil {
		return rt.VolumeRecord{}, err
	}
	return created, nil
}
