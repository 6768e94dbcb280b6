package compose

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/mmr-tortoise/stevedore/internal/model"
)

// dotEnvMaxSize is the size above which a .env file triggers a warning.
const dotEnvMaxSize = 1 << 20

// LoadDotEnv scans the directory containing a compose file for a ".env"
// sidecar and injects its keys into the process environment, shell
// environment winning on collision. Invalid names are warned and
// skipped; oversized or group/other-readable files warn without failing.
func LoadDotEnv(composePath string) error {
	path := filepath.Join(filepath.Dir(composePath), ".env")
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return model.WrapError(model.KindInternal, err, "stat %s", path)
	}

	if info.Size() > dotEnvMaxSize {
		slog.Warn("large .env file", "path", path, "size", info.Size())
	}
	if info.Mode().Perm()&0o044 != 0 {
		slog.Warn(".env file is readable by group or others", "path", path, "mode", info.Mode().Perm())
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return model.WrapError(model.KindInvalidArgument, err, "parse %s", path)
	}

	for key, value := range values {
		if !model.EnvNamePattern.MatchString(key) {
			slog.Warn("skipping invalid variable name in .env", "path", path, "name", key)
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return model.WrapError(model.KindInternal, err, "set %s from %s", key, path)
		}
	}
	return nil
}
