package compose

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/mmr-tortoise/stevedore/internal/model"
)

// ReadEnvFile loads a service env_file. The path supports a "./" prefix
// and "~" expansion; a relative path resolves against workDir. Entries
// follow dotenv syntax (KEY=VAL, optional "export", "#" comments,
// quoted values); ${VAR} and $VAR references resolve against keys
// defined in the file first, then the process environment.
func ReadEnvFile(path, workDir string) (map[string]string, error) {
	resolved, err := resolvePath(path, workDir)
	if err != nil {
		return nil, err
	}
	values, err := godotenv.Read(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.ErrNotFound("env file %s", resolved)
		}
		return nil, model.WrapError(model.KindInvalidArgument, err, "parse env file %s", resolved)
	}

	lookup := func(name string) (string, bool) {
		if v, ok := values[name]; ok {
			return v, true
		}
		return os.LookupEnv(name)
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(values))
	for _, key := range keys {
		if !model.EnvNamePattern.MatchString(key) {
			return nil, model.ErrInvalidArgument("env file %s: invalid variable name %q", resolved, key)
		}
		expanded, err := Interpolate(values[key], lookup)
		if err != nil {
			return nil, model.WrapError(model.KindInvalidArgument, err, "env file %s: variable %q", resolved, key)
		}
		out[key] = expanded
	}
	return out, nil
}

// resolvePath expands "~" and makes relative paths absolute against the
// given base directory.
func resolvePath(path, base string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", model.WrapError(model.KindInternal, err, "resolve home directory for %s", path)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	return filepath.Join(base, path), nil
}
