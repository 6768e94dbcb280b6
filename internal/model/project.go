package model

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// EnvNamePattern is the grammar for environment variable names. It is
// enforced during interpolation, .env loading, and validation.
var EnvNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Protocol is the transport protocol of a published port.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// IsValid reports whether the protocol is one of the supported values.
func (p Protocol) IsValid() bool {
	return p == ProtocolTCP || p == ProtocolUDP
}

// ParseProtocol converts a string to a Protocol. The empty string
// defaults to TCP, matching compose semantics.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(s) {
	case "", "tcp":
		return ProtocolTCP, nil
	case "udp":
		return ProtocolUDP, nil
	default:
		return "", ErrInvalidArgument("unsupported protocol %q (valid: tcp, udp)", s)
	}
}

// MountType distinguishes the three supported volume mount flavors.
type MountType string

const (
	// MountTypeBind surfaces a host directory directly into the container.
	MountTypeBind MountType = "bind"
	// MountTypeVolume mounts a runtime-managed named or anonymous volume.
	MountTypeVolume MountType = "volume"
	// MountTypeTmpfs mounts an in-memory filesystem at the target path.
	MountTypeTmpfs MountType = "tmpfs"
)

// IsValid reports whether the mount type is one of the supported values.
func (m MountType) IsValid() bool {
	switch m {
	case MountTypeBind, MountTypeVolume, MountTypeTmpfs:
		return true
	default:
		return false
	}
}

// RestartPolicy is the container restart behavior requested by a service.
type RestartPolicy string

const (
	RestartNo            RestartPolicy = "no"
	RestartAlways        RestartPolicy = "always"
	RestartOnFailure     RestartPolicy = "on-failure"
	RestartUnlessStopped RestartPolicy = "unless-stopped"
)

// ParseRestartPolicy converts a string to a RestartPolicy. The empty
// string maps to RestartNo.
func ParseRestartPolicy(s string) (RestartPolicy, error) {
	switch strings.ToLower(s) {
	case "", "no", "none":
		return RestartNo, nil
	case "always":
		return RestartAlways, nil
	case "on-failure":
		return RestartOnFailure, nil
	case "unless-stopped":
		return RestartUnlessStopped, nil
	default:
		return "", ErrInvalidArgument("invalid restart policy %q (valid: no, always, on-failure, unless-stopped)", s)
	}
}

// PortMapping is a single normalized host-to-container port publication.
// Range forms in the compose file expand into one PortMapping per port.
type PortMapping struct {
	// HostIP is the host interface to bind; empty means all interfaces.
	HostIP        string   `json:"hostIP,omitempty"`
	HostPort      int      `json:"hostPort"`
	ContainerPort int      `json:"containerPort"`
	Protocol      Protocol `json:"protocol"`
}

// Key renders the mapping in the canonical "host:port->cport/proto" form
// used for fingerprint sorting and ps output.
func (p PortMapping) Key() string {
	host := p.HostIP
	if host == "" {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d->%d/%s", host, p.HostPort, p.ContainerPort, p.Protocol)
}

// VolumeMount is a normalized service mount. For MountTypeVolume an empty
// Source marks an anonymous volume whose runtime name is derived from the
// project, service, and target at reconcile time.
type VolumeMount struct {
	Source   string    `json:"source"`
	Target   string    `json:"target"`
	ReadOnly bool      `json:"readOnly"`
	Type     MountType `json:"type"`
}

// Anonymous reports whether this mount requires a generated volume name.
func (v VolumeMount) Anonymous() bool {
	return v.Type == MountTypeVolume && v.Source == ""
}

// HealthCheck describes how to probe a running container. Test holds the
// exec form; the converter rewrites shell-form tests into
// ["/bin/sh", "-c", ...] before the orchestrator sees them.
type HealthCheck struct {
	Test        []string      `json:"test"`
	Interval    time.Duration `json:"interval,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	Retries     int           `json:"retries,omitempty"`
	StartPeriod time.Duration `json:"startPeriod,omitempty"`
}

// BuildConfig describes how to produce a service image from sources.
type BuildConfig struct {
	Context    string            `json:"context,omitempty"`
	Dockerfile string            `json:"dockerfile,omitempty"`
	Args       map[string]string `json:"args,omitempty"`
	Target     string            `json:"target,omitempty"`
}

// Service is a fully normalized container specification within a project.
// Invariant: at least one of Image or Build is set.
type Service struct {
	Name        string
	Image       string
	Build       *BuildConfig
	Command     []string
	Entrypoint  []string
	// EntrypointCleared distinguishes `entrypoint: ''` (clear the image
	// entrypoint) from an absent entrypoint (inherit it).
	EntrypointCleared bool
	WorkingDir        string
	Environment       map[string]string
	Ports             []PortMapping
	Volumes           []VolumeMount
	Networks          []string

	// Dependency edges by condition. Names in all four lists are
	// validated against the project's service map.
	DependsOn                      []string
	DependsOnHealthy               []string
	DependsOnStarted               []string
	DependsOnCompletedSuccessfully []string

	HealthCheck   *HealthCheck
	Restart       RestartPolicy
	ContainerName string
	Profiles      []string
	Labels        map[string]string

	// CPUs is the requested CPU count; zero selects the default of 4
	// applied at container creation.
	CPUs int
	// MemoryBytes is the memory limit; zero selects the 2 GiB default
	// applied at container creation.
	MemoryBytes int64

	TTY       bool
	StdinOpen bool
}

// AllDependencies returns the union of the four dependency lists,
// deduplicated, in a deterministic order.
func (s *Service) AllDependencies() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range [][]string{
		s.DependsOn, s.DependsOnHealthy, s.DependsOnStarted, s.DependsOnCompletedSuccessfully,
	} {
		for _, dep := range group {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			out = append(out, dep)
		}
	}
	sort.Strings(out)
	return out
}

// Network is a normalized top-level network declaration.
type Network struct {
	Name     string
	Driver   string
	External bool
	// ExternalName is the runtime name of an external network when it
	// differs from the compose-level key.
	ExternalName string
}

// Volume is a normalized top-level volume declaration.
type Volume struct {
	Name     string
	Driver   string
	External bool
}

// Project is the canonical post-conversion model the resolver and the
// orchestrator operate on.
type Project struct {
	Name     string
	Services map[string]*Service
	Networks map[string]Network
	Volumes  map[string]Volume
}

// ContainerID returns the runtime container identifier for a service:
// "<project>_<service>" unless the service overrides it.
func (p *Project) ContainerID(service *Service) string {
	if service.ContainerName != "" {
		return service.ContainerName
	}
	return p.Name + "_" + service.Name
}

// NetworkID returns the runtime identifier for a declared network:
// the external name (or literal key) for external networks, the
// project-scoped "<project>_<name>" otherwise.
func (p *Project) NetworkID(name string) string {
	n, ok := p.Networks[name]
	if !ok {
		return p.Name + "_" + name
	}
	if n.External {
		if n.ExternalName != "" {
			return n.ExternalName
		}
		return n.Name
	}
	return p.Name + "_" + n.Name
}

// ServiceNames returns the sorted service names, used wherever
// deterministic iteration matters.
func (p *Project) ServiceNames() []string {
	names := make([]string, 0, len(p.Services))
	for name := range p.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
