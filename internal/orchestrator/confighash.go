package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mmr-tortoise/stevedore/internal/model"
)

// hashDocument is the canonical JSON shape hashed into the
// configuration fingerprint. The environment, ports, mounts, and labels
// are sorted before marshaling so equivalent configurations hash
// identically regardless of map or list iteration order; arguments and
// the healthcheck test keep their declared order.
type hashDocument struct {
	Image       string           `json:"image"`
	Executable  string           `json:"executable"`
	Arguments   []string         `json:"arguments"`
	WorkDir     string           `json:"workdir"`
	Environment []string         `json:"environment"`
	CPUs        int              `json:"cpus"`
	Memory      int64            `json:"memory"`
	Ports       []string         `json:"ports"`
	Mounts      []string         `json:"mounts"`
	Labels      []string         `json:"labels"`
	HealthCheck *hashHealthCheck `json:"healthcheck,omitempty"`
}

type hashHealthCheck struct {
	Test        []string      `json:"test"`
	Interval    time.Duration `json:"interval"`
	Timeout     time.Duration `json:"timeout"`
	Retries     int           `json:"retries"`
	StartPeriod time.Duration `json:"startPeriod"`
}

// configHash fingerprints a service's effective configuration. The
// mount keys use the logical volume name for named and anonymous
// volumes so host-path churn does not invalidate the hash; bind mounts
// key on the absolute host path.
func configHash(project *model.Project, svc *model.Service, image string) string {
	doc := hashDocument{
		Image:   image,
		WorkDir: svc.WorkingDir,
		CPUs:    svc.CPUs,
		Memory:  svc.MemoryBytes,
	}
	if len(svc.Entrypoint) > 0 {
		doc.Executable = svc.Entrypoint[0]
		doc.Arguments = append(doc.Arguments, svc.Entrypoint[1:]...)
	}
	doc.Arguments = append(doc.Arguments, svc.Command...)

	for key, value := range svc.Environment {
		doc.Environment = append(doc.Environment, key+"="+value)
	}
	sort.Strings(doc.Environment)

	for _, port := range svc.Ports {
		doc.Ports = append(doc.Ports, port.Key())
	}
	sort.Strings(doc.Ports)

	for _, mount := range svc.Volumes {
		source := mountLogicalSource(project, svc, mount)
		option := "rw"
		if mount.ReadOnly {
			option = "ro"
		}
		doc.Mounts = append(doc.Mounts, fmt.Sprintf("%s=%s:%s", mount.Target, source, option))
	}
	sort.Strings(doc.Mounts)

	for key, value := range svc.Labels {
		doc.Labels = append(doc.Labels, key+"="+value)
	}
	sort.Strings(doc.Labels)

	if hc := svc.HealthCheck; hc != nil {
		doc.HealthCheck = &hashHealthCheck{
			Test:        hc.Test,
			Interval:    hc.Interval,
			Timeout:     hc.Timeout,
			Retries:     hc.Retries,
			StartPeriod: hc.StartPeriod,
		}
	}

	canonical, err := json.Marshal(doc)
	if err != nil {
		// The document is marshalable by construction.
		panic(err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// mountLogicalSource picks the fingerprint key source for a mount:
// the stable logical volume name for volume mounts, the host path for
// binds, the literal "tmpfs" for tmpfs mounts.
func mountLogicalSource(project *model.Project, svc *model.Service, mount model.VolumeMount) string {
	switch mount.Type {
	case model.MountTypeVolume:
		return volumeRuntimeName(project, svc, mount)
	case model.MountTypeTmpfs:
		return "tmpfs"
	default:
		return mount.Source
	}
}
