package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.Empty(t, store.InstanceName("web"))
	assert.Empty(t, store.InstanceID("web"))

	require.NoError(t, store.SetInstance("web", "web-2025-06-01_12_00_00", "abc123"))

	assert.Equal(t, "web-2025-06-01_12_00_00", store.InstanceName("web"))
	assert.Equal(t, "abc123", store.InstanceID("web"))
}

func TestStorePreservesPreviousRecords(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.SetInstance("web", "web-old", "id-old"))
	require.NoError(t, store.SetInstance("web", "web-new", "id-new"))

	assert.Equal(t, "web-new", store.InstanceName("web"))
	assert.Equal(t, "id-new", store.InstanceID("web"))

	previousName, err := os.ReadFile(filepath.Join(dir, "web.instance-name.previous"))
	require.NoError(t, err)
	assert.Equal(t, "web-old", string(previousName))

	previousID, err := os.ReadFile(filepath.Join(dir, "web.instance-id.previous"))
	require.NoError(t, err)
	assert.Equal(t, "id-old", string(previousID))
}

func TestStoreSurvivesReopening(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.SetInstance("db", "db-inst", "id-db"))

	reopened, err := NewStore(dir)
	require.NoError(t, err)
	assert.Equal(t, "db-inst", reopened.InstanceName("db"))
	assert.Equal(t, "id-db", reopened.InstanceID("db"))
}

func TestStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")

	_, err := NewStore(dir)

	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
