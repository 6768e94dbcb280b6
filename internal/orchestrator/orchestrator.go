package orchestrator

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmr-tortoise/stevedore/internal/builder"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// PullPolicy controls when a service image is fetched from a registry.
type PullPolicy string

const (
	// PullAlways fetches the image on every up.
	PullAlways PullPolicy = "always"
	// PullMissing fetches only when the image is absent locally.
	PullMissing PullPolicy = "missing"
	// PullNever fails when the image is absent locally.
	PullNever PullPolicy = "never"
)

// ParsePullPolicy converts a flag value to a PullPolicy; the empty
// string defaults to PullMissing.
func ParsePullPolicy(s string) (PullPolicy, bool) {
	switch strings.ToLower(s) {
	case "", "missing":
		return PullMissing, true
	case "always":
		return PullAlways, true
	case "never":
		return PullNever, true
	default:
		return "", false
	}
}

// Timing constants for dependency gates and lifecycle transitions.
const (
	// startedWaitTimeout bounds a service_started dependency wait.
	startedWaitTimeout = 120 * time.Second

	// completedWaitTimeout bounds a service_completed_successfully
	// dependency wait.
	completedWaitTimeout = 600 * time.Second

	// defaultWaitTimeout bounds the whole --wait phase when the caller
	// gives no timeout.
	defaultWaitTimeout = 300 * time.Second

	// stopGraceTimeout is how long a container gets to exit after
	// SIGTERM before it is killed.
	stopGraceTimeout = 15 * time.Second

	// killSettleDelay is the pause after SIGKILL before deletion.
	killSettleDelay = 700 * time.Millisecond

	// defaultHealthInterval spaces healthcheck attempts when the
	// service declares no interval.
	defaultHealthInterval = 5 * time.Second

	// defaultHealthRetries is the attempt budget when the service
	// declares none.
	defaultHealthRetries = 10

	// dependencyPollInterval spaces runtime polls while waiting on a
	// dependency's container state.
	dependencyPollInterval = time.Second

	// stateMaxAge is how long an untouched project-state entry
	// survives before the periodic purge drops it.
	stateMaxAge = time.Hour

	// maxParallelBuilds caps concurrent image builds.
	maxParallelBuilds = 3
)

// Orchestrator drives the runtime for compose projects. Construct with
// New; the zero value is not usable.
type Orchestrator struct {
	runtime *rt.Client
	builder *builder.Builder
	log     *slog.Logger

	// mu serializes every mutation of the fields below. Runtime I/O
	// happens outside the lock, so operations interleave only at those
	// suspension points and observers always see consistent state.
	mu         sync.Mutex
	buildCache map[string]string
	projects   map[string]*projectState
}

// New creates an orchestrator over the given runtime client. A nil
// builder gets the default external-executable discovery; a nil logger
// uses the process default.
func New(runtime *rt.Client, b *builder.Builder, log *slog.Logger) *Orchestrator {
	if b == nil {
		b = &builder.Builder{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		runtime:    runtime,
		builder:    b,
		log:        log,
		buildCache: make(map[string]string),
		projects:   make(map[string]*projectState),
	}
}

// containerRecord is the orchestrator's memory of one reconciled
// container within a project.
type containerRecord struct {
	ID         string
	Service    string
	ConfigHash string
	Reused     bool
}

type projectState struct {
	containers map[string]containerRecord
	touched    time.Time
}

// recordContainer notes a reconciled container and refreshes the
// project's touch time.
func (o *Orchestrator) recordContainer(project string, record containerRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.projects[project]
	if !ok {
		state = &projectState{containers: make(map[string]containerRecord)}
		o.projects[project] = state
	}
	state.containers[record.Service] = record
	state.touched = time.Now()
}

// forgetProject drops all state for a project (after down).
func (o *Orchestrator) forgetProject(project string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.projects, project)
}

// purgeStaleState drops project entries untouched for longer than
// stateMaxAge. Called at the start of every Up.
func (o *Orchestrator) purgeStaleState() {
	o.mu.Lock()
	defer o.mu.Unlock()
	cutoff := time.Now().Add(-stateMaxAge)
	for name, state := range o.projects {
		if state.touched.Before(cutoff) {
			delete(o.projects, name)
		}
	}
}

// cachedBuild looks up a completed build by cache key.
func (o *Orchestrator) cachedBuild(key string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	tag, ok := o.buildCache[key]
	return tag, ok
}

// storeBuild records a completed build.
func (o *Orchestrator) storeBuild(key, tag string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buildCache[key] = tag
}
