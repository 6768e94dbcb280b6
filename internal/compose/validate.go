package compose

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/mmr-tortoise/stevedore/internal/model"
)

// knownVersions is the advisory set of compose schema versions. A
// version outside it only warns; the declared version never changes
// behavior.
var knownVersions = map[string]struct{}{
	"2": {}, "2.0": {}, "2.1": {}, "2.2": {}, "2.3": {}, "2.4": {},
	"3": {}, "3.0": {}, "3.1": {}, "3.2": {}, "3.3": {}, "3.4": {},
	"3.5": {}, "3.6": {}, "3.7": {}, "3.8": {}, "3.9": {},
}

// shortVolumeOptions are the accepted option suffixes of a short-form
// volume entry.
var shortVolumeOptions = map[string]struct{}{
	"ro": {}, "rw": {}, "z": {}, "Z": {}, "cached": {}, "delegated": {},
}

// Validate checks the merged document. It runs after Merge and before
// Convert; per-file documents are never validated individually.
func Validate(file *File) error {
	if file.Version != "" {
		if _, ok := knownVersions[file.Version]; !ok {
			slog.Warn("unknown compose file version", "version", file.Version)
		}
	}

	if len(file.Services) == 0 {
		return model.ErrInvalidArgument("no services defined")
	}

	names := make([]string, 0, len(file.Services))
	for name := range file.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		svc := file.Services[name]
		if svc == nil {
			return model.ErrInvalidArgument("service %q is empty", name)
		}
		if svc.Image == "" && svc.Build == nil && svc.Extends == nil {
			return model.ErrInvalidArgument("service %q needs an image or a build section", name)
		}
		for key := range svc.Environment.Values {
			if !model.EnvNamePattern.MatchString(key) {
				return model.ErrInvalidArgument("service %q: invalid environment variable name %q", name, key)
			}
		}
		for _, key := range svc.Environment.PassThrough {
			if !model.EnvNamePattern.MatchString(key) {
				return model.ErrInvalidArgument("service %q: invalid environment variable name %q", name, key)
			}
		}
		for _, port := range svc.Ports {
			if err := validatePortString(port); err != nil {
				return model.WrapError(model.KindInvalidArgument, err, "service %q: port %q", name, port)
			}
		}
		for _, vol := range svc.Volumes {
			if vol.Short == "" {
				continue
			}
			if err := validateShortVolume(vol.Short); err != nil {
				return model.WrapError(model.KindInvalidArgument, err, "service %q: volume %q", name, vol.Short)
			}
		}
	}

	return checkDependencyCycles(file)
}

// validatePortString accepts "HOST:CPORT" and "IP:HOST:CPORT", each
// port either a number or an A-B range, with an optional "/proto"
// suffix. A bare "CPORT" with no host part is rejected.
func validatePortString(spec string) error {
	body, proto, hasProto := strings.Cut(spec, "/")
	if hasProto {
		if _, err := model.ParseProtocol(proto); err != nil {
			return err
		}
	}
	parts := strings.Split(body, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return model.ErrInvalidArgument("expected [ip:]host:container form")
	}
	// A leading host IP is not validated beyond being non-numeric ports;
	// the trailing one or two components must be ports or ranges.
	portParts := parts
	if len(parts) == 3 {
		portParts = parts[1:]
	}
	for _, part := range portParts {
		if err := validatePortOrRange(part); err != nil {
			return err
		}
	}
	return nil
}

func validatePortOrRange(s string) error {
	lo, hi, isRange := strings.Cut(s, "-")
	if err := validatePortNumber(lo); err != nil {
		return err
	}
	if isRange {
		return validatePortNumber(hi)
	}
	return nil
}

func validatePortNumber(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return model.ErrInvalidArgument("port %q is not a number", s)
	}
	if n < 1 || n > 65535 {
		return model.ErrInvalidArgument("port %d out of range [1,65535]", n)
	}
	return nil
}

// validateShortVolume accepts "/container/path",
// "source:/container/path", and "source:/container/path:opt".
func validateShortVolume(spec string) error {
	parts := strings.Split(spec, ":")
	switch len(parts) {
	case 1, 2:
		return nil
	case 3:
		for _, opt := range strings.Split(parts[2], ",") {
			if _, ok := shortVolumeOptions[opt]; !ok {
				return model.ErrInvalidArgument("unknown volume option %q", opt)
			}
		}
		return nil
	default:
		return model.ErrInvalidArgument("too many colon-separated components")
	}
}

// checkDependencyCycles runs a DFS over every depends_on edge and
// reports the first cycle found as the full path.
func checkDependencyCycles(file *File) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(file.Services))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return model.ErrInvalidArgument("dependency cycle: %s", cyclePath(stack, name))
		}
		state[name] = visiting
		stack = append(stack, name)
		svc := file.Services[name]
		if svc != nil {
			deps := svc.DependsOn.Names()
			sort.Strings(deps)
			for _, dep := range deps {
				if _, ok := file.Services[dep]; !ok {
					return model.ErrNotFound("service %q depends on undefined service %q", name, dep)
				}
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	names := make([]string, 0, len(file.Services))
	for name := range file.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// cyclePath renders "a → b → c → a" starting from the repeated node.
func cyclePath(stack []string, repeat string) string {
	start := 0
	for i, name := range stack {
		if name == repeat {
			start = i
			break
		}
	}
	path := append(append([]string(nil), stack[start:]...), repeat)
	return strings.Join(path, " → ")
}
