package resolver

import (
	"sort"
	"strings"

	"github.com/mmr-tortoise/stevedore/internal/model"
)

// Result holds the computed orderings for one project.
type Result struct {
	// StartOrder is a topological order: every dependency precedes its
	// dependents.
	StartOrder []string

	// StopOrder is the reverse of StartOrder.
	StopOrder []string

	// ParallelGroups partitions StartOrder into levels; members of one
	// level have no edges between each other and may start concurrently.
	ParallelGroups [][]string
}

// Resolve orders the given services. An empty map yields an empty
// result. Dependency references to unknown services are notFound
// errors; cycles are invalid-argument errors carrying the full path.
func Resolve(services map[string]*model.Service) (*Result, error) {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	// successors[dep] lists the services that must wait for dep.
	successors := make(map[string][]string, len(services))
	inDegree := make(map[string]int, len(services))
	for _, name := range names {
		inDegree[name] += 0
		for _, dep := range services[name].AllDependencies() {
			if _, ok := services[dep]; !ok {
				return nil, model.ErrNotFound("service %q depends on undefined service %q", name, dep)
			}
			successors[dep] = append(successors[dep], name)
			inDegree[name]++
		}
	}

	if err := detectCycle(names, services); err != nil {
		return nil, err
	}

	result := &Result{}
	frontier := make([]string, 0, len(names))
	for _, name := range names {
		if inDegree[name] == 0 {
			frontier = append(frontier, name)
		}
	}

	for len(frontier) > 0 {
		sort.Strings(frontier)
		group := append([]string(nil), frontier...)
		result.ParallelGroups = append(result.ParallelGroups, group)
		result.StartOrder = append(result.StartOrder, group...)

		var next []string
		for _, name := range group {
			for _, succ := range successors[name] {
				inDegree[succ]--
				if inDegree[succ] == 0 {
					next = append(next, succ)
				}
			}
		}
		frontier = next
	}

	if len(result.StartOrder) != len(names) {
		// The DFS above should have reported this already.
		return nil, model.ErrInvalidArgument("circular dependency among services")
	}

	result.StopOrder = make([]string, len(result.StartOrder))
	for i, name := range result.StartOrder {
		result.StopOrder[len(result.StartOrder)-1-i] = name
	}
	return result, nil
}

// detectCycle runs a colored DFS and reports the first cycle as
// "a → b → c → a".
func detectCycle(names []string, services map[string]*model.Service) error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(services))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, n := range stack {
				if n == name {
					start = i
					break
				}
			}
			path := append(append([]string(nil), stack[start:]...), name)
			return model.ErrInvalidArgument("dependency cycle: %s", strings.Join(path, " → "))
		}
		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range services[name].AllDependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// FilterWithDependencies reduces a service map to the requested names
// plus everything they transitively depend on. Unknown requested names
// are ignored; the caller decides whether to warn.
func FilterWithDependencies(services map[string]*model.Service, requested []string) map[string]*model.Service {
	wanted := make(map[string]struct{})
	var queue []string
	for _, name := range requested {
		if _, ok := services[name]; !ok {
			continue
		}
		if _, ok := wanted[name]; !ok {
			wanted[name] = struct{}{}
			queue = append(queue, name)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		for _, dep := range services[name].AllDependencies() {
			if _, ok := wanted[dep]; ok {
				continue
			}
			if _, ok := services[dep]; !ok {
				continue
			}
			wanted[dep] = struct{}{}
			queue = append(queue, dep)
		}
	}
	out := make(map[string]*model.Service, len(wanted))
	for name := range wanted {
		out[name] = services[name]
	}
	return out
}
