package orchestrator

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/stevedore/internal/model"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

// testProject builds a minimal project around the given services.
func testProject(services map[string]*model.Service) *model.Project {
	for name, svc := range services {
		svc.Name = name
		if len(svc.Networks) == 0 {
			svc.Networks = []string{"default"}
		}
	}
	return &model.Project{
		Name:     "proj",
		Services: services,
		Networks: map[string]model.Network{
			"default": {Name: "default", Driver: "bridge"},
		},
		Volumes: map[string]model.Volume{},
	}
}

func newTestOrchestrator(fake *fakeRuntime) *Orchestrator {
	return New(fake.client(), nil, nil)
}

func TestUpCreatesInDependencyOrder(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("postgres", rt.ImageConfig{})
	fake.addImage("redis", rt.ImageConfig{})
	fake.addImage("nginx", rt.ImageConfig{})

	project := testProject(map[string]*model.Service{
		"db":    {Image: "postgres"},
		"cache": {Image: "redis", DependsOn: []string{"db"}},
		"web":   {Image: "nginx", DependsOn: []string{"cache"}},
	})

	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{Pull: PullMissing}))

	assert.Equal(t, []string{"proj_db", "proj_cache", "proj_web"}, fake.createdOrder)
	for _, id := range fake.createdOrder {
		assert.Equal(t, rt.StatusRunning, fake.container(id).status)
	}
	assert.True(t, fake.networks["proj_default"], "project network created")
}

func TestUpContainerLabels(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("nginx", rt.ImageConfig{})

	project := testProject(map[string]*model.Service{
		"web": {Image: "nginx", Labels: map[string]string{"tier": "edge"}},
	})

	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{Pull: PullMissing}))

	labels := fake.container("proj_web").config.Labels
	assert.Equal(t, "proj", labels[LabelProject])
	assert.Equal(t, "web", labels[LabelService])
	assert.Equal(t, "proj_web", labels[LabelContainer])
	assert.Equal(t, "edge", labels["tier"])
	assert.NotEmpty(t, labels[LabelConfigHash])
}

func TestUpReusesByFingerprint(t *testing.T) {
	// Seed scenario: a second up with an equivalent configuration must
	// reuse the existing containers.
	fake := newFakeRuntime()
	fake.addImage("nginx", rt.ImageConfig{})

	build := func() *model.Project {
		return testProject(map[string]*model.Service{
			"web": {Image: "nginx", Environment: map[string]string{"A": "1", "B": "2"}},
		})
	}

	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), build(), UpOptions{Pull: PullMissing}))
	require.Len(t, fake.createdOrder, 1)

	require.NoError(t, orch.Up(context.Background(), build(), UpOptions{Pull: PullMissing}))
	assert.Len(t, fake.createdOrder, 1, "second up must not recreate")
}

func TestUpRecreatesOnDrift(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("nginx", rt.ImageConfig{})

	orch := newTestOrchestrator(fake)
	first := testProject(map[string]*model.Service{
		"web": {Image: "nginx", Environment: map[string]string{"MODE": "a"}},
	})
	require.NoError(t, orch.Up(context.Background(), first, UpOptions{Pull: PullMissing}))

	second := testProject(map[string]*model.Service{
		"web": {Image: "nginx", Environment: map[string]string{"MODE": "b"}},
	})
	require.NoError(t, orch.Up(context.Background(), second, UpOptions{Pull: PullMissing}))

	assert.Equal(t, []string{"proj_web", "proj_web"}, fake.createdOrder, "drifted container is recreated")
}

func TestUpForceRecreate(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("nginx", rt.ImageConfig{})

	project := testProject(map[string]*model.Service{"web": {Image: "nginx"}})
	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{Pull: PullMissing}))
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{Pull: PullMissing, ForceRecreate: true}))
	assert.Len(t, fake.createdOrder, 2)
}

func TestUpNoRecreateKeepsDriftedContainer(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("nginx", rt.ImageConfig{})
	fake.addContainer("proj_web", "exited", map[string]string{
		LabelProject: "proj", LabelService: "web", LabelConfigHash: "stale",
	})

	project := testProject(map[string]*model.Service{"web": {Image: "nginx"}})
	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{Pull: PullMissing, NoRecreate: true}))

	assert.Empty(t, fake.createdOrder, "no container may be created")
	assert.Equal(t, rt.StatusRunning, fake.container("proj_web").status, "reused container is started")
}

func TestUpAnonymousVolume(t *testing.T) {
	// Seed scenario: a bare /cache mount creates a labeled anonymous
	// volume with a deterministic name.
	fake := newFakeRuntime()
	fake.addImage("app", rt.ImageConfig{})

	project := testProject(map[string]*model.Service{
		"app": {
			Image:   "app",
			Volumes: []model.VolumeMount{{Type: model.MountTypeVolume, Source: "", Target: "/cache"}},
		},
	})

	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{Pull: PullMissing}))

	namePattern := regexp.MustCompile(`^proj_app_anon_[0-9a-f]{12}$`)
	var found *rt.VolumeRecord
	for name, record := range fake.volumes {
		if namePattern.MatchString(name) {
			found = &record
			break
		}
	}
	require.NotNil(t, found, "anonymous volume must be created")
	assert.Equal(t, "proj", found.Labels[LabelProject])
	assert.Equal(t, "app", found.Labels[LabelService])
	assert.Equal(t, "/cache", found.Labels[LabelVolumeTarget])
	assert.Equal(t, "true", found.Labels[LabelVolumeAnonymous])

	mounts := fake.container("proj_app").config.Mounts
	require.Len(t, mounts, 1)
	assert.Equal(t, rt.MountVolume, mounts[0].Kind)
	assert.Equal(t, found.Name, mounts[0].Source)
}

func TestUpExternalNetworkMissing(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("app", rt.ImageConfig{})

	project := testProject(map[string]*model.Service{
		"app": {Image: "app", Networks: []string{"shared"}},
	})
	project.Networks = map[string]model.Network{
		"shared": {Name: "shared", External: true, ExternalName: "corp-shared"},
	}

	orch := newTestOrchestrator(fake)
	err := orch.Up(context.Background(), project, UpOptions{Pull: PullMissing})
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestUpUnsupportedNetworkDriver(t *testing.T) {
	fake := newFakeRuntime()
	project := testProject(map[string]*model.Service{"app": {Image: "app"}})
	project.Networks["default"] = model.Network{Name: "default", Driver: "overlay"}

	orch := newTestOrchestrator(fake)
	err := orch.Up(context.Background(), project, UpOptions{Pull: PullMissing})
	require.Error(t, err)
	assert.True(t, model.IsInvalidArgument(err))
}

func TestUpPullPolicies(t *testing.T) {
	t.Run("never fails on missing image", func(t *testing.T) {
		fake := newFakeRuntime()
		project := testProject(map[string]*model.Service{"app": {Image: "ghost"}})
		orch := newTestOrchestrator(fake)
		err := orch.Up(context.Background(), project, UpOptions{Pull: PullNever})
		require.Error(t, err)
		assert.True(t, model.IsNotFound(err))
	})

	t.Run("missing fetches absent image once", func(t *testing.T) {
		fake := newFakeRuntime()
		project := testProject(map[string]*model.Service{"app": {Image: "busybox"}})
		orch := newTestOrchestrator(fake)
		require.NoError(t, orch.Up(context.Background(), project, UpOptions{Pull: PullMissing}))
		assert.Equal(t, []string{"busybox"}, fake.fetched)
	})

	t.Run("always fetches even when present", func(t *testing.T) {
		fake := newFakeRuntime()
		fake.addImage("busybox", rt.ImageConfig{})
		project := testProject(map[string]*model.Service{"app": {Image: "busybox"}})
		orch := newTestOrchestrator(fake)
		require.NoError(t, orch.Up(context.Background(), project, UpOptions{Pull: PullAlways}))
		assert.Equal(t, []string{"busybox"}, fake.fetched)
	})
}

func TestUpRemoveOrphans(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("nginx", rt.ImageConfig{})
	fake.addContainer("proj_old", rt.StatusRunning, map[string]string{
		LabelProject: "proj", LabelService: "old",
	})

	project := testProject(map[string]*model.Service{"web": {Image: "nginx"}})
	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{Pull: PullMissing, RemoveOrphans: true}))

	assert.Nil(t, fake.container("proj_old"), "orphan must be removed")
	assert.NotNil(t, fake.container("proj_web"))
}

func TestUpNoDepsSelectsExactly(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("nginx", rt.ImageConfig{})
	fake.addImage("postgres", rt.ImageConfig{})

	project := testProject(map[string]*model.Service{
		"db":  {Image: "postgres"},
		"web": {Image: "nginx"},
	})
	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{
		Pull: PullMissing, Selected: []string{"web"}, NoDeps: true,
	}))

	assert.Equal(t, []string{"proj_web"}, fake.createdOrder)
}

func TestUpSelectionPullsDependencies(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("nginx", rt.ImageConfig{})
	fake.addImage("postgres", rt.ImageConfig{})

	project := testProject(map[string]*model.Service{
		"db":  {Image: "postgres"},
		"web": {Image: "nginx", DependsOn: []string{"db"}},
	})
	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{
		Pull: PullMissing, Selected: []string{"web"},
	}))

	assert.Equal(t, []string{"proj_db", "proj_web"}, fake.createdOrder)
}

func TestUpHealthGate(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("postgres", rt.ImageConfig{})
	fake.addImage("app", rt.ImageConfig{})

	project := testProject(map[string]*model.Service{
		"db": {
			Image: "postgres",
			HealthCheck: &model.HealthCheck{
				Test:     []string{"pg_isready"},
				Interval: 10 * time.Millisecond,
			},
		},
		"api": {Image: "app", DependsOnHealthy: []string{"db"}},
	})

	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{Pull: PullMissing}))
	assert.Equal(t, []string{"proj_db", "proj_api"}, fake.createdOrder)
}

func TestUpWaitPhase(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("postgres", rt.ImageConfig{})

	project := testProject(map[string]*model.Service{
		"db": {
			Image: "postgres",
			HealthCheck: &model.HealthCheck{
				Test:     []string{"pg_isready"},
				Interval: 10 * time.Millisecond,
			},
		},
	})

	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{
		Pull: PullMissing, Wait: true, WaitTimeout: 5 * time.Second,
	}))
}

func TestWaitCompletedGate(t *testing.T) {
	fake := newFakeRuntime()
	project := testProject(map[string]*model.Service{
		"migrate": {Image: "migrate"},
	})
	orch := newTestOrchestrator(fake)

	// A completed-successfully dependency whose container is already
	// gone satisfies the gate immediately.
	require.NoError(t, orch.waitCompleted(context.Background(), project, "migrate"))

	err := orch.waitCompleted(context.Background(), project, "ghost")
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestUpNoDepsIgnoresExternalGates(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("app", rt.ImageConfig{})

	project := testProject(map[string]*model.Service{
		"migrate": {Image: "migrate"},
		"app":     {Image: "app", DependsOnCompletedSuccessfully: []string{"migrate"}},
	})

	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{
		Pull: PullMissing, Selected: []string{"app"}, NoDeps: true,
	}))
	assert.Equal(t, []string{"proj_app"}, fake.createdOrder)
}
