package compose

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	units "github.com/docker/go-units"

	"github.com/mmr-tortoise/stevedore/internal/model"
	"github.com/mmr-tortoise/stevedore/internal/resolver"
)

// ConvertOptions parameterize the ComposeFile → Project transformation.
type ConvertOptions struct {
	// ProjectName names the project; when empty the lowercased base name
	// of WorkDir is used.
	ProjectName string

	// WorkDir anchors relative bind sources and env_file paths.
	WorkDir string

	// Profiles is the active profile set. When empty, only services
	// without profiles are kept.
	Profiles []string

	// Selected restricts the project to the named services plus their
	// transitive dependencies. Empty means all services.
	Selected []string
}

// DefaultProjectName derives a project name from a directory path the
// way the runtime expects identifiers: the lowercased base name.
func DefaultProjectName(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return strings.ToLower(filepath.Base(abs))
}

// Convert transforms a merged, validated File into the canonical
// Project: extends resolution, profile filtering, selection filtering,
// and normalization of every permissive field.
func Convert(file *File, opts ConvertOptions) (*model.Project, error) {
	name := opts.ProjectName
	if name == "" {
		name = DefaultProjectName(opts.WorkDir)
	}

	resolved, err := resolveInheritance(file)
	if err != nil {
		return nil, err
	}

	kept := filterProfiles(resolved, opts.Profiles)

	project := &model.Project{
		Name:     name,
		Services: make(map[string]*model.Service, len(kept)),
		Networks: make(map[string]model.Network),
		Volumes:  make(map[string]model.Volume),
	}

	for svcName, cfg := range kept {
		svc, err := convertService(svcName, cfg, opts)
		if err != nil {
			return nil, err
		}
		project.Services[svcName] = svc
	}

	if err := checkDependencyTargets(project); err != nil {
		return nil, err
	}

	if len(opts.Selected) > 0 {
		applySelection(project, opts.Selected)
	}

	if err := convertNetworks(file, project); err != nil {
		return nil, err
	}
	convertVolumes(file, project)
	return project, nil
}

// resolveInheritance computes each service's effective definition by
// recursively merging its extends base. Only same-file extends is
// supported; cycles report the full path.
func resolveInheritance(file *File) (map[string]*ServiceConfig, error) {
	resolved := make(map[string]*ServiceConfig, len(file.Services))
	resolving := make(map[string]bool)
	var stack []string

	var resolve func(name string) (*ServiceConfig, error)
	resolve = func(name string) (*ServiceConfig, error) {
		if cfg, ok := resolved[name]; ok {
			return cfg, nil
		}
		if resolving[name] {
			return nil, model.ErrInvalidArgument("extends cycle: %s", cyclePath(stack, name))
		}
		cfg, ok := file.Services[name]
		if !ok {
			return nil, model.ErrNotFound("extends references undefined service %q", name)
		}
		if cfg.Extends == nil {
			resolved[name] = cfg
			return cfg, nil
		}

		resolving[name] = true
		stack = append(stack, name)
		base, err := resolve(cfg.Extends.Service)
		if err != nil {
			return nil, err
		}
		stack = stack[:len(stack)-1]
		resolving[name] = false

		merged := extendService(base, cfg)
		resolved[name] = merged
		return merged, nil
	}

	names := make([]string, 0, len(file.Services))
	for name := range file.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := resolve(name); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

// extendService merges a base service into a derived one under the
// extends rules: scalars from the derived side win, the list fields
// concatenate base-first, environment and labels merge with the derived
// side winning, and the extends pointer is cleared.
func extendService(base, derived *ServiceConfig) *ServiceConfig {
	out := mergeService(base, derived)
	out.Extends = nil
	out.Ports = append(append(StringOrList{}, base.Ports...), derived.Ports...)
	out.Volumes = append(append([]VolumeSpec{}, base.Volumes...), derived.Volumes...)
	out.EnvFile = append(append(StringOrList{}, base.EnvFile...), derived.EnvFile...)
	out.Profiles = append(append([]string{}, base.Profiles...), derived.Profiles...)
	return out
}

// filterProfiles keeps profile-less services always; services with
// profiles stay only when one of them is active.
func filterProfiles(services map[string]*ServiceConfig, active []string) map[string]*ServiceConfig {
	activeSet := make(map[string]struct{}, len(active))
	for _, p := range active {
		activeSet[p] = struct{}{}
	}
	kept := make(map[string]*ServiceConfig, len(services))
	for name, cfg := range services {
		if len(cfg.Profiles) == 0 {
			kept[name] = cfg
			continue
		}
		for _, p := range cfg.Profiles {
			if _, ok := activeSet[p]; ok {
				kept[name] = cfg
				break
			}
		}
	}
	return kept
}

// applySelection reduces the project to the requested services plus the
// transitive closure over every dependency edge. Unknown names warn and
// are skipped.
func applySelection(project *model.Project, selected []string) {
	for _, name := range selected {
		if _, ok := project.Services[name]; !ok {
			slog.Warn("requested service is not defined", "service", name, "project", project.Name)
		}
	}
	project.Services = resolver.FilterWithDependencies(project.Services, selected)
}

// checkDependencyTargets re-verifies the referenced-service invariant
// after profile filtering, which can remove dependency targets that
// validation saw.
func checkDependencyTargets(project *model.Project) error {
	for _, name := range project.ServiceNames() {
		for _, dep := range project.Services[name].AllDependencies() {
			if _, ok := project.Services[dep]; !ok {
				return model.ErrNotFound("service %q depends on %q, which is not part of the project (missing or profile-disabled)", name, dep)
			}
		}
	}
	return nil
}

func convertService(name string, cfg *ServiceConfig, opts ConvertOptions) (*model.Service, error) {
	svc := &model.Service{
		Name:          name,
		Image:         cfg.Image,
		WorkingDir:    cfg.WorkingDir,
		ContainerName: cfg.ContainerName,
		Profiles:      append([]string(nil), cfg.Profiles...),
		TTY:           cfg.TTY,
		StdinOpen:     cfg.StdinOpen,
		Environment:   make(map[string]string),
		Labels:        make(map[string]string, len(cfg.Labels)),
	}
	for k, v := range cfg.Labels {
		svc.Labels[k] = v
	}

	if cfg.Build != nil {
		build := *cfg.Build
		if args := build.Args; args != nil {
			build.Args = make(map[string]string, len(args))
			for k, v := range args {
				build.Args[k] = v
			}
		}
		svc.Build = &model.BuildConfig{
			Context:    build.Context,
			Dockerfile: build.Dockerfile,
			Args:       build.Args,
			Target:     build.Target,
		}
	}
	if svc.Image == "" && svc.Build == nil {
		return nil, model.ErrInvalidArgument("service %q needs an image or a build section", name)
	}

	svc.Command = execForm(cfg.Command)
	svc.Entrypoint, svc.EntrypointCleared = entrypointForm(cfg.Entrypoint)

	restart, err := model.ParseRestartPolicy(cfg.Restart)
	if err != nil {
		return nil, model.WrapError(model.KindInvalidArgument, err, "service %q", name)
	}
	svc.Restart = restart

	// env_file entries merge in order, then the service-level
	// environment wins, then bare pass-through keys pull from the
	// process environment.
	for _, path := range cfg.EnvFile {
		values, err := ReadEnvFile(path, opts.WorkDir)
		if err != nil {
			return nil, model.WrapError(model.KindOf(err), err, "service %q", name)
		}
		for k, v := range values {
			svc.Environment[k] = v
		}
	}
	for k, v := range cfg.Environment.Values {
		svc.Environment[k] = v
	}
	for _, k := range cfg.Environment.PassThrough {
		if v, ok := os.LookupEnv(k); ok {
			svc.Environment[k] = v
		}
	}

	for _, spec := range cfg.Ports {
		mappings, err := ParsePort(spec)
		if err != nil {
			return nil, model.WrapError(model.KindInvalidArgument, err, "service %q: port %q", name, spec)
		}
		svc.Ports = append(svc.Ports, mappings...)
	}

	for _, spec := range cfg.Volumes {
		mount, err := convertVolumeSpec(spec, opts.WorkDir)
		if err != nil {
			return nil, model.WrapError(model.KindInvalidArgument, err, "service %q", name)
		}
		svc.Volumes = append(svc.Volumes, mount)
	}

	if cfg.DependsOn != nil {
		svc.DependsOn = append([]string(nil), cfg.DependsOn.Services...)
		sort.Strings(svc.DependsOn)
		conds := make([]string, 0, len(cfg.DependsOn.Conditions))
		for dep := range cfg.DependsOn.Conditions {
			conds = append(conds, dep)
		}
		sort.Strings(conds)
		for _, dep := range conds {
			switch cfg.DependsOn.Conditions[dep] {
			case ConditionHealthy:
				svc.DependsOnHealthy = append(svc.DependsOnHealthy, dep)
			case ConditionCompletedSuccessfully:
				svc.DependsOnCompletedSuccessfully = append(svc.DependsOnCompletedSuccessfully, dep)
			default:
				svc.DependsOnStarted = append(svc.DependsOnStarted, dep)
			}
		}
	}

	if cfg.HealthCheck != nil {
		hc, err := convertHealthCheck(cfg.HealthCheck)
		if err != nil {
			return nil, model.WrapError(model.KindInvalidArgument, err, "service %q: healthcheck", name)
		}
		svc.HealthCheck = hc
	}

	if cfg.Networks != nil {
		svc.Networks = append([]string(nil), cfg.Networks.Names...)
	}
	if len(svc.Networks) == 0 {
		svc.Networks = []string{"default"}
	}

	if err := convertResources(cfg, svc); err != nil {
		return nil, model.WrapError(model.KindInvalidArgument, err, "service %q", name)
	}
	return svc, nil
}

// execForm renders a command variant into exec form: lists pass through,
// shell strings wrap in /bin/sh -c.
func execForm(cmd *Command) []string {
	if cmd == nil || len(cmd.Parts) == 0 {
		return nil
	}
	if cmd.IsString {
		return []string{"/bin/sh", "-c", cmd.Parts[0]}
	}
	return append([]string(nil), cmd.Parts...)
}

// entrypointForm distinguishes an absent entrypoint (inherit the image's)
// from an explicitly cleared one (`entrypoint: ''` or `['']`).
func entrypointForm(cmd *Command) (parts []string, cleared bool) {
	if cmd == nil {
		return nil, false
	}
	if len(cmd.Parts) == 0 || (len(cmd.Parts) == 1 && cmd.Parts[0] == "") {
		return nil, true
	}
	if cmd.IsString {
		return []string{"/bin/sh", "-c", cmd.Parts[0]}, false
	}
	return append([]string(nil), cmd.Parts...), false
}

// ParsePort expands one compose port string into discrete mappings.
// Accepted shapes: "HOST:CPORT", "IP:HOST:CPORT", and the range form
// "A-B:C-D" whose sides must span the same number of ports, each with
// an optional "/tcp" or "/udp" suffix.
func ParsePort(spec string) ([]model.PortMapping, error) {
	body, protoStr, _ := strings.Cut(spec, "/")
	proto, err := model.ParseProtocol(protoStr)
	if err != nil {
		return nil, err
	}

	parts := strings.Split(body, ":")
	var hostIP, hostPart, containerPart string
	switch len(parts) {
	case 2:
		hostPart, containerPart = parts[0], parts[1]
	case 3:
		hostIP, hostPart, containerPart = parts[0], parts[1], parts[2]
	default:
		return nil, model.ErrInvalidArgument("expected [ip:]host:container form")
	}

	hostLo, hostHi, err := parsePortRange(hostPart)
	if err != nil {
		return nil, err
	}
	ctrLo, ctrHi, err := parsePortRange(containerPart)
	if err != nil {
		return nil, err
	}
	if hostHi-hostLo != ctrHi-ctrLo {
		return nil, model.ErrInvalidArgument("port range sizes differ: %s vs %s", hostPart, containerPart)
	}

	mappings := make([]model.PortMapping, 0, hostHi-hostLo+1)
	for i := 0; i <= hostHi-hostLo; i++ {
		mappings = append(mappings, model.PortMapping{
			HostIP:        hostIP,
			HostPort:      hostLo + i,
			ContainerPort: ctrLo + i,
			Protocol:      proto,
		})
	}
	return mappings, nil
}

func parsePortRange(s string) (lo, hi int, err error) {
	loStr, hiStr, isRange := strings.Cut(s, "-")
	lo, err = parsePort(loStr)
	if err != nil {
		return 0, 0, err
	}
	if !isRange {
		return lo, lo, nil
	}
	hi, err = parsePort(hiStr)
	if err != nil {
		return 0, 0, err
	}
	if hi < lo {
		return 0, 0, model.ErrInvalidArgument("descending port range %q", s)
	}
	return lo, hi, nil
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, model.ErrInvalidArgument("port %q is not a number", s)
	}
	if n < 1 || n > 65535 {
		return 0, model.ErrInvalidArgument("port %d out of range [1,65535]", n)
	}
	return n, nil
}

// convertVolumeSpec normalizes one service volume entry.
func convertVolumeSpec(spec VolumeSpec, workDir string) (model.VolumeMount, error) {
	if spec.Short != "" {
		return parseShortVolume(spec.Short, workDir)
	}

	mount := model.VolumeMount{
		Source:   spec.Source,
		Target:   spec.Target,
		ReadOnly: spec.ReadOnly,
		Type:     model.MountType(spec.Type),
	}
	if mount.Target == "" {
		return mount, model.ErrInvalidArgument("volume entry needs a target")
	}
	if mount.Type == "" {
		if isPathSource(mount.Source) {
			mount.Type = model.MountTypeBind
		} else {
			mount.Type = model.MountTypeVolume
		}
	}
	if mount.Type == model.MountTypeBind {
		resolved, err := resolveBindSource(mount.Source, workDir)
		if err != nil {
			return mount, err
		}
		mount.Source = resolved
	}
	if mount.Type == model.MountTypeTmpfs {
		mount.Source = ""
	}
	return mount, nil
}

// parseShortVolume handles "/path" (anonymous volume),
// "source:/target", and "source:/target:opts".
func parseShortVolume(short, workDir string) (model.VolumeMount, error) {
	parts := strings.Split(short, ":")
	switch len(parts) {
	case 1:
		return model.VolumeMount{Type: model.MountTypeVolume, Source: "", Target: parts[0]}, nil
	case 2, 3:
		mount := model.VolumeMount{Source: parts[0], Target: parts[1]}
		if len(parts) == 3 {
			for _, opt := range strings.Split(parts[2], ",") {
				if opt == "ro" {
					mount.ReadOnly = true
				}
			}
		}
		if isPathSource(mount.Source) {
			mount.Type = model.MountTypeBind
			resolved, err := resolveBindSource(mount.Source, workDir)
			if err != nil {
				return mount, err
			}
			mount.Source = resolved
		} else {
			mount.Type = model.MountTypeVolume
		}
		return mount, nil
	default:
		return model.VolumeMount{}, model.ErrInvalidArgument("invalid volume %q", short)
	}
}

// isPathSource reports whether a short-form source names a host path
// rather than a named volume.
func isPathSource(source string) bool {
	return strings.HasPrefix(source, "/") ||
		strings.HasPrefix(source, "./") ||
		strings.HasPrefix(source, "../") ||
		source == "." || source == ".." ||
		source == "~" || strings.HasPrefix(source, "~/")
}

// resolveBindSource expands "~" and anchors relative bind sources at
// the working directory.
func resolveBindSource(source, workDir string) (string, error) {
	resolved, err := resolvePath(source, workDir)
	if err != nil {
		return "", err
	}
	return resolved, nil
}

// convertHealthCheck normalizes the test command and parses durations.
func convertHealthCheck(spec *HealthSpec) (*model.HealthCheck, error) {
	if spec.Disable {
		return nil, nil
	}
	if spec.Test == nil || len(spec.Test.Parts) == 0 {
		return nil, model.ErrInvalidArgument("healthcheck needs a test")
	}

	var test []string
	parts := spec.Test.Parts
	switch {
	case spec.Test.IsString:
		test = []string{"/bin/sh", "-c", parts[0]}
	case len(parts) == 1 && parts[0] == "NONE":
		return nil, nil
	case parts[0] == "CMD-SHELL":
		if len(parts) != 2 {
			return nil, model.ErrInvalidArgument("CMD-SHELL takes exactly one command string")
		}
		test = []string{"/bin/sh", "-c", parts[1]}
	case parts[0] == "CMD":
		test = append([]string(nil), parts[1:]...)
	default:
		test = append([]string(nil), parts...)
	}

	hc := &model.HealthCheck{Test: test, Retries: spec.Retries}
	var err error
	if hc.Interval, err = parseComposeDuration(spec.Interval); err != nil {
		return nil, err
	}
	if hc.Timeout, err = parseComposeDuration(spec.Timeout); err != nil {
		return nil, err
	}
	if hc.StartPeriod, err = parseComposeDuration(spec.StartPeriod); err != nil {
		return nil, err
	}
	return hc, nil
}

// parseComposeDuration accepts the "<number><s|m|h>" forms compose
// files use (time.ParseDuration covers them).
func parseComposeDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, model.ErrInvalidArgument("invalid duration %q", s)
	}
	if d < 0 {
		return 0, model.ErrInvalidArgument("negative duration %q", s)
	}
	return d, nil
}

// convertResources fills CPU and memory limits. Service-level fields
// win over deploy.resources.limits; "max" leaves the limit unset, so the
// default applied at container creation is used.
func convertResources(cfg *ServiceConfig, svc *model.Service) error {
	cpus := cfg.CPUs
	memory := cfg.MemLimit
	if cfg.Deploy != nil {
		if cpus == "" {
			cpus = cfg.Deploy.Resources.Limits.CPUs
		}
		if memory == "" {
			memory = cfg.Deploy.Resources.Limits.Memory
		}
	}

	if cpus != "" {
		value, err := strconv.ParseFloat(cpus, 64)
		if err != nil || value <= 0 {
			return model.ErrInvalidArgument("invalid cpus value %q", cpus)
		}
		svc.CPUs = int(math.Ceil(value))
	}

	if memory != "" && memory != "max" {
		bytes, err := units.RAMInBytes(memory)
		if err != nil {
			return model.ErrInvalidArgument("invalid memory value %q", memory)
		}
		svc.MemoryBytes = bytes
	}
	return nil
}

// convertNetworks maps top-level declarations into the project,
// synthesizing the default bridge network when services rely on it
// without a declaration.
func convertNetworks(file *File, project *model.Project) error {
	for name, decl := range file.Networks {
		network := model.Network{Name: name, Driver: "bridge"}
		if decl != nil {
			if decl.Driver != "" {
				network.Driver = decl.Driver
			}
			if decl.External != nil && decl.External.External {
				network.External = true
				network.ExternalName = decl.External.Name
			}
			if decl.Name != "" && network.ExternalName == "" {
				network.ExternalName = decl.Name
			}
		}
		project.Networks[name] = network
	}
	for _, name := range project.ServiceNames() {
		for _, net := range project.Services[name].Networks {
			if _, ok := project.Networks[net]; ok {
				continue
			}
			if net != "default" {
				return model.ErrInvalidArgument("service %q references undefined network %q", name, net)
			}
			project.Networks["default"] = model.Network{Name: "default", Driver: "bridge"}
		}
	}
	if len(project.Networks) == 0 {
		project.Networks["default"] = model.Network{Name: "default", Driver: "bridge"}
	}
	return nil
}

func convertVolumes(file *File, project *model.Project) {
	for name, decl := range file.Volumes {
		volume := model.Volume{Name: name, Driver: "local"}
		if decl != nil {
			if decl.Driver != "" {
				volume.Driver = decl.Driver
			}
			if decl.External != nil && decl.External.External {
				volume.External = true
				if decl.External.Name != "" {
					volume.Name = decl.External.Name
				}
			}
		}
		project.Volumes[name] = volume
	}
}

// Describe renders a one-line summary used by verbose logging.
func Describe(project *model.Project) string {
	return fmt.Sprintf("project %q: %d services, %d networks, %d volumes",
		project.Name, len(project.Services), len(project.Networks), len(project.Volumes))
}
