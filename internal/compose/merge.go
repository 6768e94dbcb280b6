package compose

import "gopkg.in/yaml.v3"

// Merge combines an ordered list of parsed files, later files overriding
// earlier ones under the compose merge rules: scalars override, maps
// (environment, labels) merge per key with the override winning, and
// lists (ports, volumes, networks, depends_on, env_file, profiles)
// replace wholesale. Services, networks, and volumes present only in an
// override are added.
func Merge(files []*File) *File {
	if len(files) == 0 {
		return &File{}
	}
	merged := files[0]
	for _, override := range files[1:] {
		merged = mergeFiles(merged, override)
	}
	return merged
}

func mergeFiles(base, override *File) *File {
	out := &File{
		Version:  base.Version,
		Name:     base.Name,
		Services: make(map[string]*ServiceConfig),
		Networks: make(map[string]*NetworkDecl),
		Volumes:  make(map[string]*VolumeDecl),
	}
	if len(base.Extra) > 0 || len(override.Extra) > 0 {
		out.Extra = make(map[string]yaml.Node, len(base.Extra)+len(override.Extra))
		for key, node := range base.Extra {
			out.Extra[key] = node
		}
	}
	if override.Version != "" {
		out.Version = override.Version
	}
	if override.Name != "" {
		out.Name = override.Name
	}
	for key, node := range override.Extra {
		out.Extra[key] = node
	}

	for name, svc := range base.Services {
		out.Services[name] = svc
	}
	for name, svc := range override.Services {
		if existing, ok := out.Services[name]; ok {
			out.Services[name] = mergeService(existing, svc)
		} else {
			out.Services[name] = svc
		}
	}

	for name, net := range base.Networks {
		out.Networks[name] = net
	}
	for name, net := range override.Networks {
		out.Networks[name] = net
	}
	for name, vol := range base.Volumes {
		out.Volumes[name] = vol
	}
	for name, vol := range override.Volumes {
		out.Volumes[name] = vol
	}
	return out
}

// mergeService applies the override-file rules to a single service.
func mergeService(base, override *ServiceConfig) *ServiceConfig {
	out := *base

	if override.Image != "" {
		out.Image = override.Image
	}
	if override.Build != nil {
		out.Build = override.Build
	}
	if override.Command != nil {
		out.Command = override.Command
	}
	if override.Entrypoint != nil {
		out.Entrypoint = override.Entrypoint
	}
	if override.WorkingDir != "" {
		out.WorkingDir = override.WorkingDir
	}
	if override.Restart != "" {
		out.Restart = override.Restart
	}
	if override.ContainerName != "" {
		out.ContainerName = override.ContainerName
	}
	if override.CPUs != "" {
		out.CPUs = override.CPUs
	}
	if override.MemLimit != "" {
		out.MemLimit = override.MemLimit
	}
	if override.HealthCheck != nil {
		out.HealthCheck = override.HealthCheck
	}
	if override.Deploy != nil {
		out.Deploy = override.Deploy
	}
	if override.Extends != nil {
		out.Extends = override.Extends
	}
	if override.TTY {
		out.TTY = true
	}
	if override.StdinOpen {
		out.StdinOpen = true
	}

	// Maps merge key by key, override winning on collision.
	if !override.Environment.Empty() {
		out.Environment = mergeEnvironment(base.Environment, override.Environment)
	}
	if len(override.Labels) > 0 {
		merged := make(Labels, len(base.Labels)+len(override.Labels))
		for k, v := range base.Labels {
			merged[k] = v
		}
		for k, v := range override.Labels {
			merged[k] = v
		}
		out.Labels = merged
	}

	// Lists replace wholesale.
	if len(override.EnvFile) > 0 {
		out.EnvFile = override.EnvFile
	}
	if len(override.Ports) > 0 {
		out.Ports = override.Ports
	}
	if len(override.Volumes) > 0 {
		out.Volumes = override.Volumes
	}
	if override.Networks != nil {
		out.Networks = override.Networks
	}
	if override.DependsOn != nil {
		out.DependsOn = override.DependsOn
	}
	if len(override.Profiles) > 0 {
		out.Profiles = override.Profiles
	}
	return &out
}

func mergeEnvironment(base, override Environment) Environment {
	out := Environment{Values: make(map[string]string, len(base.Values)+len(override.Values))}
	for k, v := range base.Values {
		out.Values[k] = v
	}
	for k, v := range override.Values {
		out.Values[k] = v
	}
	seen := make(map[string]struct{})
	for _, lists := range [][]string{base.PassThrough, override.PassThrough} {
		for _, k := range lists {
			if _, dup := seen[k]; dup {
				continue
			}
			if _, set := out.Values[k]; set {
				continue
			}
			seen[k] = struct{}{}
			out.PassThrough = append(out.PassThrough, k)
		}
	}
	return out
}
