package builder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/stevedore/internal/model"
)

func TestImageTagPrefersDeclaredImage(t *testing.T) {
	tag := ImageTag("proj", "web", "registry.test/web:1.0", &model.BuildConfig{Context: "."})
	assert.Equal(t, "registry.test/web:1.0", tag)
}

func TestImageTagDeterministic(t *testing.T) {
	build := &model.BuildConfig{
		Context:    "./web",
		Dockerfile: "Dockerfile",
		Args:       map[string]string{"B": "2", "A": "1"},
	}
	first := ImageTag("proj", "web", "", build)
	second := ImageTag("proj", "web", "", &model.BuildConfig{
		Context:    "./web",
		Dockerfile: "Dockerfile",
		Args:       map[string]string{"A": "1", "B": "2"},
	})

	assert.Equal(t, first, second, "argument order must not change the tag")
	assert.Regexp(t, `^proj_web:[0-9a-f]{12}$`, first)

	changed := ImageTag("proj", "web", "", &model.BuildConfig{
		Context:    "./web",
		Dockerfile: "Dockerfile",
		Args:       map[string]string{"A": "1", "B": "changed"},
	})
	assert.NotEqual(t, first, changed)
}

func TestCacheKeyIgnoresArgOrder(t *testing.T) {
	a := Request{Project: "p", Service: "s", Context: ".", Args: map[string]string{"X": "1", "Y": "2"}}
	b := Request{Project: "p", Service: "s", Context: ".", Args: map[string]string{"Y": "2", "X": "1"}}
	assert.Equal(t, a.CacheKey(), b.CacheKey())
}

func TestBuildMissingContext(t *testing.T) {
	b := &Builder{}
	err := b.Build(t.Context(), Request{
		Service: "web",
		Context: filepath.Join(t.TempDir(), "missing"),
		Tag:     "proj_web:abc",
	})
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestBuildMissingDockerfile(t *testing.T) {
	contextDir := t.TempDir()
	b := &Builder{}
	err := b.Build(t.Context(), Request{
		Service:    "web",
		Context:    contextDir,
		Dockerfile: "Dockerfile.missing",
		Tag:        "proj_web:abc",
	})
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestBuildMissingExecutable(t *testing.T) {
	contextDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "Dockerfile"), []byte("FROM scratch\n"), 0o600))

	b := &Builder{Executable: filepath.Join(t.TempDir(), "no-such-builder")}
	err := b.Build(t.Context(), Request{
		Service:    "web",
		Context:    contextDir,
		Dockerfile: "Dockerfile",
		Tag:        "proj_web:abc",
	})
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestBuildRunsExecutable(t *testing.T) {
	contextDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "Dockerfile"), []byte("FROM scratch\n"), 0o600))

	// A stub builder that records its arguments and succeeds.
	outFile := filepath.Join(t.TempDir(), "args.txt")
	stub := filepath.Join(t.TempDir(), "fake-builder")
	script := "#!/bin/sh\necho \"$@\" > " + outFile + "\n"
	require.NoError(t, os.WriteFile(stub, []byte(script), 0o755))

	b := &Builder{Executable: stub}
	err := b.Build(t.Context(), Request{
		Project:    "proj",
		Service:    "web",
		Context:    contextDir,
		Dockerfile: "Dockerfile",
		Args:       map[string]string{"VERSION": "1"},
		Target:     "final",
		Tag:        "proj_web:abc",
	})
	require.NoError(t, err)

	recorded, err := os.ReadFile(outFile)
	require.NoError(t, err)
	line := string(recorded)
	assert.Contains(t, line, "build")
	assert.Contains(t, line, "--file Dockerfile")
	assert.Contains(t, line, "--build-arg VERSION=1")
	assert.Contains(t, line, "--target final")
	assert.Contains(t, line, "--tag proj_web:abc")
	assert.Contains(t, line, contextDir)
}

func TestBuildFailureIncludesStderr(t *testing.T) {
	contextDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(contextDir, "Dockerfile"), []byte("FROM scratch\n"), 0o600))

	stub := filepath.Join(t.TempDir(), "failing-builder")
	script := "#!/bin/sh\necho 'boom: no space left' >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(stub, []byte(script), 0o755))

	b := &Builder{Executable: stub}
	err := b.Build(t.Context(), Request{
		Service: "web",
		Context: contextDir,
		Tag:     "proj_web:abc",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom: no space left")
}
