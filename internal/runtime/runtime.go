package runtime

import (
	"context"
	"io"
	"time"

	"github.com/mmr-tortoise/stevedore/internal/model"
)

// StatusRunning is the container status value reported for a running
// container. Other status strings ("created", "exited", ...) pass
// through from the runtime and are only compared against this one.
const StatusRunning = "running"

// ContainerSummary is the runtime's view of one container.
type ContainerSummary struct {
	ID     string
	Status string
	Image  string
	Labels map[string]string
	Ports  []model.PortMapping
}

// MountKind distinguishes resolved mount flavors handed to the runtime.
type MountKind string

const (
	// MountBind surfaces a host directory (virtiofs-backed runtimes
	// translate this to a shared filesystem).
	MountBind MountKind = "bind"
	// MountVolume attaches a runtime-managed volume by name.
	MountVolume MountKind = "volume"
	// MountTmpfs places an in-memory filesystem at the target.
	MountTmpfs MountKind = "tmpfs"
)

// Mount is a fully resolved mount in a container configuration.
type Mount struct {
	Kind     MountKind
	Source   string
	Target   string
	ReadOnly bool
}

// NetworkAttachment connects a container to one runtime network.
// Order is significant: the first attachment provides the default
// route on runtimes that care.
type NetworkAttachment struct {
	NetworkID string
	Hostname  string
}

// ContainerConfiguration is everything needed to create a container.
type ContainerConfiguration struct {
	ID         string
	Image      string
	Exec       []string
	WorkingDir string
	// Env holds "KEY=VALUE" entries.
	Env           []string
	Labels        map[string]string
	Networks      []NetworkAttachment
	Ports         []model.PortMapping
	Mounts        []Mount
	CPUs          int
	MemoryBytes   int64
	TTY           bool
	OpenStdin     bool
	RestartPolicy model.RestartPolicy
}

// Stdio carries the streams attached to a created process. Nil fields
// mean the stream is not attached.
type Stdio struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// ProcessConfig describes an exec process inside a running container.
type ProcessConfig struct {
	Exec        []string
	WorkingDir  string
	User        string
	Env         []string
	TTY         bool
	Interactive bool
}

// Process is a handle to a created in-container process.
type Process interface {
	// Start launches the process.
	Start(ctx context.Context) error
	// Wait blocks until the process exits and returns its exit code.
	Wait(ctx context.Context) (int, error)
	// Kill delivers a signal by name ("SIGTERM", "SIGKILL", ...).
	Kill(ctx context.Context, signal string) error
}

// LogSource is one ordered stream of container output.
type LogSource struct {
	// Stream is "stdout" or "stderr".
	Stream string
	Reader io.ReadCloser
}

// LogsOptions control how container logs are opened.
type LogsOptions struct {
	Follow     bool
	Tail       int
	Timestamps bool
	// IncludeBoot folds the container's boot output into the stderr
	// source on runtimes that keep a separate boot log.
	IncludeBoot bool
}

// ContainerClient is the container surface of the runtime.
type ContainerClient interface {
	List(ctx context.Context) ([]ContainerSummary, error)
	// Get fetches one container by ID; notFound when absent.
	Get(ctx context.Context, id string) (ContainerSummary, error)
	// Create registers a new container; alreadyExists when the ID is
	// taken.
	Create(ctx context.Context, config ContainerConfiguration) error
	// Bootstrap prepares the container sandbox. Idempotent.
	Bootstrap(ctx context.Context, id string) error
	Start(ctx context.Context, id string) error
	// Stop delivers SIGTERM and waits up to timeout for the container
	// to leave the running state.
	Stop(ctx context.Context, id string, timeout time.Duration) error
	// Kill delivers a signal without waiting.
	Kill(ctx context.Context, id string, signal string) error
	Delete(ctx context.Context, id string, force bool) error
	// CreateProcess spawns an exec process inside a running container.
	CreateProcess(ctx context.Context, id string, config ProcessConfig, stdio Stdio) (Process, error)
	// Logs opens the container's output sources in stream order
	// (stdout first, stderr when the runtime separates it).
	Logs(ctx context.Context, id string, opts LogsOptions) ([]LogSource, error)
}

// ImageConfig is the subset of an image's configuration that container
// creation needs.
type ImageConfig struct {
	Entrypoint []string
	Cmd        []string
	WorkingDir string
}

// Image is a resolved image reference.
type Image struct {
	Reference string
}

// ImageClient is the image surface of the runtime.
type ImageClient interface {
	// Get resolves a local image; notFound when absent.
	Get(ctx context.Context, ref string) (Image, error)
	// Fetch pulls the image for the current platform.
	Fetch(ctx context.Context, ref string) (Image, error)
	// Config reads entrypoint, cmd, and workdir from a local image.
	Config(ctx context.Context, ref string) (ImageConfig, error)
}

// NetworkMode selects the network implementation for created networks.
type NetworkMode string

// NetworkModeNAT is the only creation mode project networks use.
const NetworkModeNAT NetworkMode = "nat"

// NetworkInfo describes one runtime network.
type NetworkInfo struct {
	ID string
}

// NetworkClient is the network surface of the runtime.
type NetworkClient interface {
	Create(ctx context.Context, id string, mode NetworkMode) (NetworkInfo, error)
	// Get fetches a network by ID; notFound when absent.
	Get(ctx context.Context, id string) (NetworkInfo, error)
	Delete(ctx context.Context, id string) error
	// Default returns the runtime's default network, used for services
	// with no declared attachments.
	Default(ctx context.Context) (NetworkInfo, error)
}

// VolumeRecord describes one runtime volume, including its resolved
// host source. Volume mounts reference the volume by Name.
type VolumeRecord struct {
	Name   string
	Source string
	Format string
	Labels map[string]string
}

// VolumeClient is the volume surface of the runtime.
type VolumeClient interface {
	Create(ctx context.Context, name string, labels map[string]string) (VolumeRecord, error)
	List(ctx context.Context) ([]VolumeRecord, error)
	// Inspect fetches a volume by name; notFound when absent.
	Inspect(ctx context.Context, name string) (VolumeRecord, error)
	Delete(ctx context.Context, name string) error
}

// Client bundles the four runtime surfaces the orchestrator consumes.
type Client struct {
	Containers ContainerClient
	Images     ImageClient
	Networks   NetworkClient
	Volumes    VolumeClient
}
