package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/stevedore/internal/model"
	rt "github.com/mmr-tortoise/stevedore/internal/runtime"
)

func TestDownRemovesContainersVolumesNetworks(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("postgres", rt.ImageConfig{})

	project := testProject(map[string]*model.Service{
		"db": {
			Image:   "postgres",
			Volumes: []model.VolumeMount{{Type: model.MountTypeVolume, Source: "pgdata", Target: "/data"}},
		},
	})
	project.Volumes["pgdata"] = model.Volume{Name: "pgdata", Driver: "local"}

	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{Pull: PullMissing}))
	require.Contains(t, fake.volumes, "proj_pgdata")

	result, err := orch.Down(context.Background(), project, DownOptions{RemoveVolumes: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"proj_db"}, result.Containers)
	assert.Contains(t, result.Volumes, "proj_pgdata")
	assert.Empty(t, fake.containerIDs())
	assert.NotContains(t, fake.volumes, "proj_pgdata")
	assert.False(t, fake.networks["proj_default"], "project network removed")
}

func TestDownRemovesAnonymousVolumes(t *testing.T) {
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
	require.Len(t, fake.volumes, 1)

	result, err := orch.Down(context.Background(), project, DownOptions{RemoveVolumes: true})
	require.NoError(t, err)
	assert.Len(t, result.Volumes, 1)
	assert.Empty(t, fake.volumes)
}

func TestDownKeepsVolumesByDefault(t *testing.T) {
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

	result, err := orch.Down(context.Background(), project, DownOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Volumes)
	assert.Len(t, fake.volumes, 1, "volumes survive a plain down")
}

func TestDownKeepsExternalResources(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("app", rt.ImageConfig{})
	fake.networks["corp-shared"] = true
	fake.volumes["corp-data"] = rt.VolumeRecord{Name: "corp-data"}

	project := testProject(map[string]*model.Service{
		"app": {Image: "app", Networks: []string{"shared"}},
	})
	project.Networks = map[string]model.Network{
		"shared": {Name: "shared", External: true, ExternalName: "corp-shared"},
	}
	project.Volumes["data"] = model.Volume{Name: "corp-data", External: true}

	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{Pull: PullMissing}))

	_, err := orch.Down(context.Background(), project, DownOptions{RemoveVolumes: true})
	require.NoError(t, err)
	assert.True(t, fake.networks["corp-shared"], "external network untouched")
	assert.Contains(t, fake.volumes, "corp-data", "external volume untouched")
}

func TestPs(t *testing.T) {
	fake := newFakeRuntime()
	fake.addImage("nginx", rt.ImageConfig{})

	project := testProject(map[string]*model.Service{
		"web": {
			Image: "nginx",
			Ports: []model.PortMapping{{HostPort: 8080, ContainerPort: 80, Protocol: model.ProtocolTCP}},
		},
	})

	orch := newTestOrchestrator(fake)
	require.NoError(t, orch.Up(context.Background(), project, UpOptions{Pull: PullMissing}))

	rows, err := orch.Ps(context.Background(), project)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "web", rows[0].Service)
	assert.Equal(t, "nginx", rows[0].Image)
	assert.Equal(t, rt.StatusRunning, rows[0].Status)
	assert.Contains(t, rows[0].Ports, "8080->80/tcp")
}

func TestRemoveSkipsRunningWithoutForce(t *testing.T) {
	fake := newFakeRuntime()
	fake.addContainer("proj_web", rt.StatusRunning, map[string]string{
		LabelProject: "proj", LabelService: "web",
	})
	fake.addContainer("proj_db", "exited", map[string]string{
		LabelProject: "proj", LabelService: "db",
	})

	project := testProject(map[string]*model.Service{
		"web": {Image: "nginx"},
		"db":  {Image: "postgres"},
	})

	orch := newTestOrchestrator(fake)
	removed, err := orch.Remove(context.Background(), project, RemoveOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"proj_db"}, removed)
	assert.NotNil(t, fake.container("proj_web"), "running container kept")

	removed, err = orch.Remove(context.Background(), project, RemoveOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"proj_web"}, removed)
}

func TestCheckHealth(t *testing.T) {
	fake := newFakeRuntime()
	fake.addContainer("proj_db", rt.StatusRunning, map[string]string{
		LabelProject: "proj", LabelService: "db",
	})
	fake.addContainer("proj_bad", rt.StatusRunning, map[string]string{
		LabelProject: "proj", LabelService: "bad",
	})
	fake.addContainer("proj_plain", rt.StatusRunning, map[string]string{
		LabelProject: "proj", LabelService: "plain",
	})
	fake.processExit["proj_bad"] = 1

	check := &model.HealthCheck{Test: []string{"true"}}
	project := testProject(map[string]*model.Service{
		"db":    {Image: "postgres", HealthCheck: check},
		"bad":   {Image: "app", HealthCheck: check},
		"plain": {Image: "app"},
	})

	orch := newTestOrchestrator(fake)
	results, err := orch.CheckHealth(context.Background(), project, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"db": true, "bad": false, "plain": true}, results)
}

func TestLogsNonFollow(t *testing.T) {
	fake := newFakeRuntime()
	fake.addContainer("proj_web", rt.StatusRunning, map[string]string{
		LabelProject: "proj", LabelService: "web",
	})
	fake.logLines["proj_web"] = []string{"line one", "line two"}

	project := testProject(map[string]*model.Service{"web": {Image: "nginx"}})
	orch := newTestOrchestrator(fake)

	entries, err := orch.Logs(context.Background(), project, LogsOptions{})
	require.NoError(t, err)

	var messages []string
	for entry := range entries {
		assert.Equal(t, "web", entry.Service)
		assert.Equal(t, "proj_web", entry.Container)
		assert.Equal(t, "stdout", entry.Stream)
		messages = append(messages, entry.Message)
	}
	assert.Equal(t, []string{"line one", "line two"}, messages)
}

func TestLogsUnknownService(t *testing.T) {
	fake := newFakeRuntime()
	project := testProject(map[string]*model.Service{"web": {Image: "nginx"}})
	orch := newTestOrchestrator(fake)

	_, err := orch.Logs(context.Background(), project, LogsOptions{Services: []string{"ghost"}})
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestExecReturnsExitCode(t *testing.T) {
	fake := newFakeRuntime()
	fake.addContainer("proj_web", rt.StatusRunning, map[string]string{
		LabelProject: "proj", LabelService: "web",
	})
	fake.processExit["proj_web"] = 3

	project := testProject(map[string]*model.Service{"web": {Image: "nginx"}})
	orch := newTestOrchestrator(fake)

	code, err := orch.Exec(context.Background(), project, ExecOptions{
		Service: "web",
		Command: []string{"false"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}

func TestExecRequiresRunningContainer(t *testing.T) {
	fake := newFakeRuntime()
	fake.addContainer("proj_web", "exited", map[string]string{
		LabelProject: "proj", LabelService: "web",
	})

	project := testProject(map[string]*model.Service{"web": {Image: "nginx"}})
	orch := newTestOrchestrator(fake)

	_, err := orch.Exec(context.Background(), project, ExecOptions{
		Service: "web",
		Command: []string{"true"},
	})
	require.Error(t, err)
	assert.True(t, model.IsInvalidArgument(err))
}
