package orchestrator

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mmr-tortoise/stevedore/internal/model"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// fakeRuntime is an in-memory runtime used by every orchestrator test.
// It records mutation order so tests can assert sequencing.
type fakeRuntime struct {
	mu sync.Mutex

	containers map[string]*fakeContainer
	images     map[string]rt.ImageConfig
	networks   map[string]bool
	volumes    map[string]rt.VolumeRecord

	createdOrder []string
	fetched      []string
	// processExit decides the exit code of created processes, keyed by
	// container ID; missing keys exit 0.
	processExit map[string]int
	// logLines provides canned log output per container.
	logLines map[string][]string
}

type fakeContainer struct {
	config rt.ContainerConfiguration
	status string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		containers:  make(map[string]*fakeContainer),
		images:      make(map[string]rt.ImageConfig),
		networks:    map[string]bool{"bridge": true},
		volumes:     make(map[string]rt.VolumeRecord),
		processExit: make(map[string]int),
		logLines:    make(map[string][]string),
	}
}

func (f *fakeRuntime) client() *rt.Client {
	return &rt.Client{
		Containers: (*fakeContainerClient)(f),
		Images:     (*fakeImageClient)(f),
		Networks:   (*fakeNetworkClient)(f),
		Volumes:    (*fakeVolumeClient)(f),
	}
}

// addImage registers a locally available image.
func (f *fakeRuntime) addImage(ref string, config rt.ImageConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[ref] = config
}

// addContainer seeds a pre-existing container.
func (f *fakeRuntime) addContainer(id, status string, labels map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[id] = &fakeContainer{
		config: rt.ContainerConfiguration{ID: id, Labels: labels},
		status: status,
	}
}

func (f *fakeRuntime) container(id string) *fakeContainer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.containers[id]
}

func (f *fakeRuntime) containerIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.containers))
	for id := range f.containers {
		ids = append(ids, id)
	}
	return ids
}

type fakeContainerClient fakeRuntime

func (f *fakeContainerClient) List(ctx context.Context) ([]rt.ContainerSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]rt.ContainerSummary, 0, len(f.containers))
	for id, c := range f.containers {
		out = append(out, rt.ContainerSummary{
			ID: id, Status: c.status, Image: c.config.Image, Labels: c.config.Labels, Ports: c.config.Ports,
		})
	}
	return out, nil
}

func (f *fakeContainerClient) Get(ctx context.Context, id string) (rt.ContainerSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return rt.ContainerSummary{}, model.ErrNotFound("container %q", id)
	}
	return rt.ContainerSummary{
		ID: id, Status: c.status, Image: c.config.Image, Labels: c.config.Labels, Ports: c.config.Ports,
	}, nil
}

func (f *fakeContainerClient) Create(ctx context.Context, config rt.ContainerConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[config.ID]; ok {
		return model.NewError(model.KindAlreadyExists, "container %q", config.ID)
	}
	f.containers[config.ID] = &fakeContainer{config: config, status: "created"}
	f.createdOrder = append(f.createdOrder, config.ID)
	return nil
}

func (f *fakeContainerClient) Bootstrap(ctx context.Context, id string) error { return nil }

func (f *fakeContainerClient) Start(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return model.ErrNotFound("container %q", id)
	}
	c.status = rt.StatusRunning
	return nil
}

func (f *fakeContainerClient) Stop(ctx context.Context, id string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return model.ErrNotFound("container %q", id)
	}
	c.status = "exited"
	return nil
}

func (f *fakeContainerClient) Kill(ctx context.Context, id, signal string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return model.ErrNotFound("container %q", id)
	}
	c.status = "exited"
	return nil
}

func (f *fakeContainerClient) Delete(ctx context.Context, id string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[id]; !ok {
		return model.ErrNotFound("container %q", id)
	}
	delete(f.containers, id)
	return nil
}

func (f *fakeContainerClient) CreateProcess(ctx context.Context, id string, config rt.ProcessConfig, stdio rt.Stdio) (rt.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return nil, model.ErrNotFound("container %q", id)
	}
	if c.status != rt.StatusRunning {
		return nil, model.ErrInvalidArgument("container %q is not running", id)
	}
	return &fakeProcess{exit: f.processExit[id]}, nil
}

func (f *fakeContainerClient) Logs(ctx context.Context, id string, opts rt.LogsOptions) ([]rt.LogSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[id]; !ok {
		return nil, model.ErrNotFound("container %q", id)
	}
	lines := f.logLines[id]
	return []rt.LogSource{{
		Stream: "stdout",
		Reader: io.NopCloser(strings.NewReader(strings.Join(lines, "\n") + "\n")),
	}}, nil
}

type fakeProcess struct {
	exit int
}

func (p *fakeProcess) Start(ctx context.Context) error          { return nil }
func (p *fakeProcess) Wait(ctx context.Context) (int, error)    { return p.exit, nil }
func (p *fakeProcess) Kill(ctx context.Context, _ string) error { return nil }

type fakeImageClient fakeRuntime

func (f *fakeImageClient) Get(ctx context.Context, ref string) (rt.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.images[ref]; !ok {
		return rt.Image{}, model.ErrNotFound("image %q", ref)
	}
	return rt.Image{Reference: ref}, nil
}

func (f *fakeImageClient) Fetch(ctx context.Context, ref string) (rt.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, ref)
	if _, ok := f.images[ref]; !ok {
		f.images[ref] = rt.ImageConfig{}
	}
	return rt.Image{Reference: ref}, nil
}

func (f *fakeImageClient) Config(ctx context.Context, ref string) (rt.ImageConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	config, ok := f.images[ref]
	if !ok {
		return rt.ImageConfig{}, model.ErrNotFound("image %q", ref)
	}
	return config, nil
}

type fakeNetworkClient fakeRuntime

func (f *fakeNetworkClient) Create(ctx context.Context, id string, mode rt.NetworkMode) (rt.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.networks[id] {
		return rt.NetworkInfo{}, model.NewError(model.KindAlreadyExists, "network %q", id)
	}
	f.networks[id] = true
	return rt.NetworkInfo{ID: id}, nil
}

func (f *fakeNetworkClient) Get(ctx context.Context, id string) (rt.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.networks[id] {
		return rt.NetworkInfo{}, model.ErrNotFound("network %q", id)
	}
	return rt.NetworkInfo{ID: id}, nil
}

func (f *fakeNetworkClient) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.networks[id] {
		return model.ErrNotFound("network %q", id)
	}
	delete(f.networks, id)
	return nil
}

func (f *fakeNetworkClient) Default(ctx context.Context) (rt.NetworkInfo, error) {
	return rt.NetworkInfo{ID: "bridge"}, nil
}

type fakeVolumeClient fakeRuntime

func (f *fakeVolumeClient) Create(ctx context.Context, name string, labels map[string]string) (rt.VolumeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record := rt.VolumeRecord{Name: name, Source: "/var/volumes/" + name, Format: "ext4", Labels: labels}
	f.volumes[name] = record
	return record, nil
}

func (f *fakeVolumeClient) List(ctx context.Context) ([]rt.VolumeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]rt.VolumeRecord, 0, len(f.volumes))
	for _, record := range f.volumes {
		out = append(out, record)
	}
	return out, nil
}

func (f *fakeVolumeClient) Inspect(ctx context.Context, name string) (rt.VolumeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	record, ok := f.volumes[name]
	if !ok {
		return rt.VolumeRecord{}, model.ErrNotFound("volume %q", name)
	}
	return record, nil
}

func (f *fakeVolumeClient) Delete(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.volumes[name]; !ok {
		return model.ErrNotFound("volume %q", name)
	}
	delete(f.volumes, name)
	return nil
}
