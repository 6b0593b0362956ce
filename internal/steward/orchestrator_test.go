package steward

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopManyStopsDependentsInReverseOrder(t *testing.T) {
	db, app, web, _, graph := testGraph()
	rt := newFakeRuntime()
	store := newFakeStore()
	dbInst := startTracked(rt, store, db)
	appInst := startTracked(rt, store, app)
	webInst := startTracked(rt, store, web)
	o := newTestOrchestrator(graph, rt, store)

	stopped, err := o.StopMany(t.Context(), []*Container{db}, false)

	require.NoError(t, err)
	assert.Equal(t, []string{"web", "app", "db"}, names(stopped))
	assert.Equal(t, []string{webInst.name, appInst.name, dbInst.name}, rt.stopped)
}

func TestStopManyIgnoreDependenciesStopsOnlyRequested(t *testing.T) {
	db, app, web, _, graph := testGraph()
	rt := newFakeRuntime()
	store := newFakeStore()
	dbInst := startTracked(rt, store, db)
	startTracked(rt, store, app)
	startTracked(rt, store, web)
	o := newTestOrchestrator(graph, rt, store)

	stopped, err := o.StopMany(t.Context(), []*Container{db}, true)

	require.NoError(t, err)
	assert.Equal(t, []string{"db"}, names(stopped))
	assert.Equal(t, []string{dbInst.name}, rt.stopped)
}

func TestRestartManyBringsAffectedSetBackUpInOrder(t *testing.T) {
	db, app, web, _, graph := testGraph()
	rt := newFakeRuntime()
	store := newFakeStore()
	dbInst := startTracked(rt, store, db)
	startTracked(rt, store, app)
	startTracked(rt, store, web)
	o := newTestOrchestrator(graph, rt, store)

	err := o.RestartMany(t.Context(), []*Container{app}, false)

	require.NoError(t, err)
	// db was never stopped and stays untouched; app and web come back up in
	// dependency order with fresh timestamped instance names.
	require.Len(t, rt.runs, 2)
	assert.Equal(t, "app-2025-06-01_12_00_00", rt.runs[0].InstanceName)
	assert.Equal(t, "web-2025-06-01_12_00_00", rt.runs[1].InstanceName)

	// app links the untouched db instance; web links the fresh app instance.
	require.Len(t, rt.runs[0].Links, 1)
	assert.Equal(t, RunLink{InstanceName: dbInst.name, Alias: "db"}, rt.runs[0].Links[0])
	require.Len(t, rt.runs[1].Links, 1)
	assert.Equal(t, RunLink{InstanceName: "app-2025-06-01_12_00_00", Alias: "app"}, rt.runs[1].Links[0])

	// The store follows the fresh instances.
	assert.Equal(t, "app-2025-06-01_12_00_00", store.InstanceName("app"))
	assert.Equal(t, "id-web-2025-06-01_12_00_00", store.InstanceID("web"))
}

func TestRestartManyNeverStartsBuildOnlyContainers(t *testing.T) {
	base := &Container{Name: "base", ImageRef: "base:latest", OnlyBuild: true}
	app := &Container{Name: "app", ImageRef: "app:latest", Links: []*Container{base}}
	graph := []*Container{base, app}
	rt := newFakeRuntime()
	rt.images["base:latest"] = true
	store := newFakeStore()
	startTracked(rt, store, app)
	o := newTestOrchestrator(graph, rt, store)

	err := o.RestartMany(t.Context(), []*Container{base}, false)

	require.NoError(t, err)
	require.Len(t, rt.runs, 1)
	assert.Equal(t, "app:latest", rt.runs[0].ImageRef)
}

func TestStartRefusesSecondInstance(t *testing.T) {
	db, _, _, _, graph := testGraph()
	rt := newFakeRuntime()
	store := newFakeStore()
	startTracked(rt, store, db)
	o := newTestOrchestrator(graph, rt, store)

	err := o.Start(t.Context(), db)

	assert.True(t, IsCode(err, ErrorCodeContractViolation))
}

func TestStartFailsWithoutLocalImage(t *testing.T) {
	db, _, _, _, graph := testGraph()
	rt := newFakeRuntime()
	o := newTestOrchestrator(graph, rt, newFakeStore())

	err := o.Start(t.Context(), db)

	assert.True(t, IsCode(err, ErrorCodeImageNotFound))
}

func TestStartSkipsLinkToStoppedDependency(t *testing.T) {
	_, app, _, _, graph := testGraph()
	rt := newFakeRuntime()
	rt.images["db:latest"] = true // built but not running
	rt.images["app:latest"] = true
	o := newTestOrchestrator(graph, rt, newFakeStore())

	err := o.Start(t.Context(), app)

	require.NoError(t, err)
	require.Len(t, rt.runs, 1)
	assert.Empty(t, rt.runs[0].Links, "a stopped dependency degrades to a missing link")
}

func TestStartFailsWhenDependencyImageIsMissing(t *testing.T) {
	_, app, _, _, graph := testGraph()
	rt := newFakeRuntime()
	rt.images["app:latest"] = true // db:latest does not exist
	o := newTestOrchestrator(graph, rt, newFakeStore())

	err := o.Start(t.Context(), app)

	assert.True(t, IsCode(err, ErrorCodeImageNotFound))
	assert.Empty(t, rt.runs)
}

func TestRestartManyIgnoreDependenciesSkipsUnbuildableContainers(t *testing.T) {
	_, app, _, _, graph := testGraph()
	rt := newFakeRuntime()
	rt.images["app:latest"] = true // db:latest does not exist
	o := newTestOrchestrator(graph, rt, newFakeStore())

	err := o.RestartMany(t.Context(), []*Container{app}, true)

	// db cannot start (no image) and app cannot link it; both degrade to
	// warnings instead of failing the whole pass.
	require.NoError(t, err)
	assert.Empty(t, rt.runs)
}

func TestStartManyOnlyStartsStoppedContainers(t *testing.T) {
	db := &Container{Name: "db", ImageRef: "db:latest"}
	app := &Container{Name: "app", ImageRef: "app:latest", Links: []*Container{db}}
	graph := []*Container{db, app}
	rt := newFakeRuntime()
	store := newFakeStore()
	startTracked(rt, store, db)
	rt.images["app:latest"] = true
	o := newTestOrchestrator(graph, rt, store)

	err := o.StartMany(t.Context(), []*Container{db, app}, false)

	require.NoError(t, err)
	require.Len(t, rt.runs, 1)
	assert.Equal(t, "app:latest", rt.runs[0].ImageRef)
	assert.Empty(t, rt.stopped, "an already running container is not restarted")
}

func TestStatusDetectsUnmanagedInstance(t *testing.T) {
	db, _, _, _, graph := testGraph()
	rt := newFakeRuntime()
	rt.images["db:latest"] = true
	rt.instances = append(rt.instances, &fakeInstance{
		id:       "rogue",
		name:     "rogue",
		imageRef: "db:latest",
		running:  true,
	})
	o := newTestOrchestrator(graph, rt, newFakeStore())

	_, err := o.Status(t.Context(), db, false)

	assert.True(t, IsCode(err, ErrorCodeUnmanagedInstance))
}

func TestStatusIgnoresTemporaryInstances(t *testing.T) {
	db, _, _, _, graph := testGraph()
	rt := newFakeRuntime()
	rt.images["db:latest"] = true
	rt.instances = append(rt.instances, &fakeInstance{
		id:       "tmp",
		name:     "tmp",
		imageRef: "db:latest",
		labels:   map[string]string{LabelTemporary: "true"},
		running:  true,
	})
	o := newTestOrchestrator(graph, rt, newFakeStore())

	report, err := o.Status(t.Context(), db, false)

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, "stopped", report.Message)
}

func TestStatusMissingImageShortCircuits(t *testing.T) {
	db, _, _, _, graph := testGraph()
	db.Tests = []Test{{Kind: TestKindShell, Command: "true"}}
	rt := newFakeRuntime()
	o := newTestOrchestrator(graph, rt, newFakeStore())

	report, err := o.Status(t.Context(), db, false)

	require.NoError(t, err)
	assert.Equal(t, StatusMissing, report.Status)
}

func TestStatusStartingWithinGraceWindow(t *testing.T) {
	db, _, _, _, graph := testGraph()
	db.StartupGraceTime = 2 * time.Hour // instance started one hour ago
	db.Tests = []Test{{Kind: TestKindShell, Command: "check"}}
	rt := newFakeRuntime()
	rt.execResults["check"] = ExecResult{ExitCode: 1}
	store := newFakeStore()
	startTracked(rt, store, db)
	o := newTestOrchestrator(graph, rt, store)

	report, err := o.Status(t.Context(), db, false)

	require.NoError(t, err)
	assert.Equal(t, StatusStarting, report.Status)
}

func TestStatusSleepsBeforeTestsWhenAsked(t *testing.T) {
	db, _, _, _, graph := testGraph()
	db.SleepBeforeTest = 3 * time.Second
	rt := newFakeRuntime()
	store := newFakeStore()
	startTracked(rt, store, db)
	o := newTestOrchestrator(graph, rt, store)
	var slept time.Duration
	o.sleep = func(d time.Duration) { slept += d }

	_, err := o.Status(t.Context(), db, true)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, slept)

	_, err = o.Status(t.Context(), db, false)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, slept, "no sleep without sleepBefore")
}

func TestRebuildManyBuildsTagsAndRestarts(t *testing.T) {
	_, _, _, cache, graph := testGraph()
	cache.BuildPath = "./cache"
	cache.AliasTags = []string{"cache:stable"}
	rt := newFakeRuntime()
	store := newFakeStore()
	startTracked(rt, store, cache)
	o := newTestOrchestrator(graph, rt, store)

	err := o.RebuildMany(t.Context(), []*Container{cache}, RebuildOptions{})

	require.NoError(t, err)
	assert.Equal(t, []string{"cache:latest"}, rt.builds)
	assert.Equal(t, [][2]string{{"cache:latest", "cache:stable"}}, rt.tags)
	require.Len(t, rt.runs, 1)
	assert.Equal(t, "cache-2025-06-01_12_00_00", rt.runs[0].InstanceName)
}

func TestRebuildManyOnlyMissingSkipsExistingImages(t *testing.T) {
	_, _, _, cache, graph := testGraph()
	cache.BuildPath = "./cache"
	rt := newFakeRuntime()
	store := newFakeStore()
	startTracked(rt, store, cache) // image exists
	o := newTestOrchestrator(graph, rt, store)

	err := o.RebuildMany(t.Context(), []*Container{cache}, RebuildOptions{OnlyMissing: true})

	require.NoError(t, err)
	assert.Empty(t, rt.builds)
}

func TestRebuildManyRefusesWithUnmanagedInstance(t *testing.T) {
	db, _, _, _, graph := testGraph()
	db.BuildPath = "./db"
	rt := newFakeRuntime()
	rt.images["db:latest"] = true
	rt.instances = append(rt.instances, &fakeInstance{
		id:       "rogue",
		name:     "rogue",
		imageRef: "db:latest",
		running:  true,
	})
	o := newTestOrchestrator(graph, rt, newFakeStore())

	err := o.RebuildMany(t.Context(), []*Container{db}, RebuildOptions{})

	assert.True(t, IsCode(err, ErrorCodeUnmanagedInstance))
	assert.Empty(t, rt.builds, "nothing is built once the conflict is found")
}

func TestNeedsUpdates(t *testing.T) {
	db, _, _, _, graph := testGraph()
	db.UpdateCheckCommand = "list-upgrades"
	rt := newFakeRuntime()
	store := newFakeStore()
	startTracked(rt, store, db)
	o := newTestOrchestrator(graph, rt, store)

	rt.execResults["list-upgrades"] = ExecResult{ExitCode: 0, Output: nil}
	needs, err := o.NeedsUpdates(t.Context(), db)
	require.NoError(t, err)
	assert.False(t, needs)

	rt.execResults["list-upgrades"] = ExecResult{ExitCode: 0, Output: []byte("Inst libssl3\n")}
	needs, err = o.NeedsUpdates(t.Context(), db)
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestNeedsUpdatesSkipsStoppedContainers(t *testing.T) {
	db, _, _, _, graph := testGraph()
	db.UpdateCheckCommand = "list-upgrades"
	rt := newFakeRuntime()
	rt.images["db:latest"] = true
	rt.execResults["list-upgrades"] = ExecResult{ExitCode: 1}
	o := newTestOrchestrator(graph, rt, newFakeStore())

	needs, err := o.NeedsUpdates(t.Context(), db)

	require.NoError(t, err)
	assert.False(t, needs)
}
