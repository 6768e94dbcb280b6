package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/stevedore/internal/model"
)

// services builds a service map from name → plain dependencies.
func services(deps map[string][]string) map[string]*model.Service {
	out := make(map[string]*model.Service, len(deps))
	for name, d := range deps {
		out[name] = &model.Service{Name: name, DependsOn: d}
	}
	return out
}

func TestResolveLinear(t *testing.T) {
	// Seed scenario: db ← cache ← web.
	result, err := Resolve(services(map[string][]string{
		"db":    nil,
		"cache": {"db"},
		"web":   {"cache"},
	}))
	require.NoError(t, err)

	assert.Equal(t, []string{"db", "cache", "web"}, result.StartOrder)
	assert.Equal(t, []string{"web", "cache", "db"}, result.StopOrder)
	assert.Equal(t, [][]string{{"db"}, {"cache"}, {"web"}}, result.ParallelGroups)
}

func TestResolveDiamond(t *testing.T) {
	// Seed scenario: db and cache first, then api, then web, with
	// edges from every dependency kind.
	svcs := map[string]*model.Service{
		"db":    {Name: "db"},
		"cache": {Name: "cache"},
		"api": {
			Name:             "api",
			DependsOn:        []string{"db"},
			DependsOnStarted: []string{"cache"},
		},
		"web": {
			Name:             "web",
			DependsOn:        []string{"api"},
			DependsOnHealthy: []string{"db"},
		},
	}
	result, err := Resolve(svcs)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"cache", "db"}, {"api"}, {"web"}}, result.ParallelGroups)
	assert.Equal(t, []string{"cache", "db", "api", "web"}, result.StartOrder)
}

func TestResolveEmpty(t *testing.T) {
	result, err := Resolve(nil)
	require.NoError(t, err)
	assert.Empty(t, result.StartOrder)
	assert.Empty(t, result.StopOrder)
	assert.Empty(t, result.ParallelGroups)
}

func TestResolveSelfEdge(t *testing.T) {
	_, err := Resolve(services(map[string][]string{
		"app": {"app"},
	}))
	require.Error(t, err)
	assert.True(t, model.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), "app → app")
}

func TestResolveCyclePath(t *testing.T) {
	_, err := Resolve(services(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}))
	require.Error(t, err)
	assert.True(t, model.IsInvalidArgument(err))
	assert.Contains(t, err.Error(), "a → b → c → a")
}

func TestResolveUnknownDependency(t *testing.T) {
	_, err := Resolve(services(map[string][]string{
		"web": {"ghost"},
	}))
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

// TestResolveInvariants checks the universal ordering properties on a
// wider graph.
func TestResolveInvariants(t *testing.T) {
	deps := map[string][]string{
		"a": nil,
		"b": nil,
		"c": {"a", "b"},
		"d": {"a"},
		"e": {"c", "d"},
		"f": {"b"},
		"g": {"e", "f"},
	}
	svcs := services(deps)
	result, err := Resolve(svcs)
	require.NoError(t, err)

	// StartOrder is a permutation of the service names.
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e", "f", "g"}, result.StartOrder)

	// Every edge u → v has u before v.
	index := make(map[string]int, len(result.StartOrder))
	for i, name := range result.StartOrder {
		index[name] = i
	}
	for name, dlist := range deps {
		for _, dep := range dlist {
			assert.Less(t, index[dep], index[name], "%s must start before %s", dep, name)
		}
	}

	// StopOrder is the reverse of StartOrder.
	for i, name := range result.StartOrder {
		assert.Equal(t, name, result.StopOrder[len(result.StopOrder)-1-i])
	}

	// Flattened groups equal StartOrder, and no member depends on its
	// own or a later group.
	var flattened []string
	groupOf := make(map[string]int)
	for g, group := range result.ParallelGroups {
		for _, name := range group {
			groupOf[name] = g
			flattened = append(flattened, name)
		}
	}
	assert.Equal(t, result.StartOrder, flattened)
	for name, dlist := range deps {
		for _, dep := range dlist {
			assert.Less(t, groupOf[dep], groupOf[name])
		}
	}
}

func TestFilterWithDependencies(t *testing.T) {
	svcs := map[string]*model.Service{
		"db":    {Name: "db"},
		"cache": {Name: "cache", DependsOnStarted: []string{"db"}},
		"web":   {Name: "web", DependsOnHealthy: []string{"cache"}},
		"other": {Name: "other"},
	}

	filtered := FilterWithDependencies(svcs, []string{"web"})
	assert.Len(t, filtered, 3)
	assert.NotContains(t, filtered, "other")

	// Closure property: every dependency of a member is a member.
	for _, svc := range filtered {
		for _, dep := range svc.AllDependencies() {
			assert.Contains(t, filtered, dep)
		}
	}
}

func TestFilterWithDependenciesUnknownName(t *testing.T) {
	filtered := FilterWithDependencies(map[string]*model.Service{
		"web": {Name: "web"},
	}, []string{"ghost"})
	assert.Empty(t, filtered)
}
