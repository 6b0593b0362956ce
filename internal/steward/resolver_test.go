package steward

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// testGraph builds a chain db <- app <- web plus an independent cache.
func testGraph() (db, app, web, cache *Container, graph []*Container) {
	db = &Container{Name: "db", ImageRef: "db:latest"}
	app = &Container{Name: "app", ImageRef: "app:latest", Links: []*Container{db}}
	web = &Container{Name: "web", ImageRef: "web:latest", Links: []*Container{app}}
	cache = &Container{Name: "cache", ImageRef: "cache:latest"}
	return db, app, web, cache, []*Container{db, cache, app, web}
}

func names(cs []*Container) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}

func TestOrderByDependencyOrdersDependenciesFirst(t *testing.T) {
	db, app, web, _, graph := testGraph()

	ordered := OrderByDependency(graph, []*Container{web, db, app}, false, false, testLogger())

	assert.Equal(t, []string{"db", "app", "web"}, names(ordered))
}

func TestOrderByDependencyAddsDependencies(t *testing.T) {
	_, _, web, _, graph := testGraph()

	ordered := OrderByDependency(graph, []*Container{web}, true, false, testLogger())

	assert.Equal(t, []string{"db", "app", "web"}, names(ordered))
}

func TestOrderByDependencyAddsReverseDependencies(t *testing.T) {
	db, _, _, _, graph := testGraph()

	ordered := OrderByDependency(graph, []*Container{db}, false, true, testLogger())

	assert.Equal(t, []string{"db", "app", "web"}, names(ordered))
}

func TestOrderByDependencyLeavesUnrelatedContainersAlone(t *testing.T) {
	_, _, _, cache, graph := testGraph()

	ordered := OrderByDependency(graph, []*Container{cache}, false, true, testLogger())

	assert.Equal(t, []string{"cache"}, names(ordered))
}

func TestOrderByDependencyIgnoresUnsatisfiableLinks(t *testing.T) {
	// Without addDependencies, web's link on app cannot be satisfied from the
	// working set. It must still be ordered, not dropped or looped on.
	_, _, web, _, graph := testGraph()

	ordered := OrderByDependency(graph, []*Container{web}, false, false, testLogger())

	assert.Equal(t, []string{"web"}, names(ordered))
}

func TestOrderByDependencyIsIdempotent(t *testing.T) {
	db, app, web, cache, graph := testGraph()

	once := OrderByDependency(graph, []*Container{web, cache, db, app}, true, true, testLogger())
	twice := OrderByDependency(graph, once, true, true, testLogger())

	assert.Equal(t, names(once), names(twice))
}

func TestReversed(t *testing.T) {
	db, app, web, _, _ := testGraph()

	original := []*Container{db, app, web}
	reversed := Reversed(original)

	assert.Equal(t, []string{"web", "app", "db"}, names(reversed))
	// The input is left untouched.
	assert.Equal(t, []string{"db", "app", "web"}, names(original))
}
