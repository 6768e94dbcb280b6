package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mmr-tortoise/stevedore/internal/builder"
	"github.com/mmr-tortoise/stevedore/internal/compose"
	"github.com/mmr-tortoise/stevedore/internal/docker"
	"github.com/mmr-tortoise/stevedore/internal/model"
	"github.com/mmr-tortoise/stevedore/internal/orchestrator"
)

// defaultComposeNames is the search order when no --file is given.
var defaultComposeNames = []string{
	"compose.yaml",
	"compose.yml",
	"docker-compose.yaml",
	"docker-compose.yml",
}

// resolveComposeFiles returns the compose file list: the --file flags
// as given, or the first default name found in the working directory.
func resolveComposeFiles() ([]string, error) {
	if len(composeFiles) > 0 {
		return composeFiles, nil
	}
	for _, name := range defaultComposeNames {
		if _, err := os.Stat(name); err == nil {
			return []string{name}, nil
		}
	}
	return nil, model.ErrNotFound("no compose file found (tried %s); use --file", strings.Join(defaultComposeNames, ", "))
}

// parseEnvOverrides turns repeated --env KEY=VAL flags into a map.
func parseEnvOverrides() (map[string]string, error) {
	if len(envOverrides) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(envOverrides))
	for _, pair := range envOverrides {
		key, value, found := strings.Cut(pair, "=")
		if !found || !model.EnvNamePattern.MatchString(key) {
			return nil, model.ErrInvalidArgument("invalid --env value %q (want KEY=VAL)", pair)
		}
		out[key] = value
	}
	return out, nil
}

// loadProject runs the full compose pipeline for the current flags:
// parse, merge, validate, convert.
func loadProject() (*model.Project, error) {
	files, err := resolveComposeFiles()
	if err != nil {
		return nil, err
	}
	env, err := parseEnvOverrides()
	if err != nil {
		return nil, err
	}

	merged, err := compose.Parse(files, compose.Options{
		Env:          env,
		AllowAnchors: allowAnchors,
	})
	if err != nil {
		return nil, err
	}

	workDir := filepath.Dir(files[0])
	if abs, err := filepath.Abs(workDir); err == nil {
		workDir = abs
	}
	return compose.Convert(merged, compose.ConvertOptions{
		ProjectName: projectName,
		WorkDir:     workDir,
		Profiles:    profiles,
	})
}

// newOrchestrator connects to the runtime and wires up an orchestrator.
// The returned closer releases the runtime client.
func newOrchestrator() (*orchestrator.Orchestrator, func(), error) {
	client, err := docker.NewClient()
	if err != nil {
		return nil, nil, err
	}
	closer := func() { _ = client.Close() }
	orch := orchestrator.New(client.Runtime(), &builder.Builder{}, nil)
	return orch, closer, nil
}
