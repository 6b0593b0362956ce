package lockfile

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "steward.lock")
}

func TestLockOnFreshFile(t *testing.T) {
	path := lockPath(t)
	m, err := NewManager(path)
	require.NoError(t, err)
	t.Cleanup(func() { m.Unlock() })

	assert.False(t, m.AnotherInstanceIsRunning())
	require.NoError(t, m.Lock())

	// Our identity is recorded for the next instance's liveness probe.
	pid, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(pid))

	cmdline, err := os.ReadFile(path + ".cmdline")
	require.NoError(t, err)
	ownCmdline, err := os.ReadFile("/proc/self/cmdline")
	require.NoError(t, err)
	assert.Equal(t, ownCmdline, cmdline)
}

func TestLockDetectsLiveHolder(t *testing.T) {
	// Simulate a holder that is still alive by recording this very process.
	path := lockPath(t)
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644))
	ownCmdline, err := os.ReadFile("/proc/self/cmdline")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path+".cmdline", ownCmdline, 0o644))

	m, err := NewManager(path)
	require.NoError(t, err)
	t.Cleanup(func() { m.Unlock() })

	assert.True(t, m.AnotherInstanceIsRunning())

	err = m.Lock()
	var already *AlreadyRunningError
	require.ErrorAs(t, err, &already)
	assert.Contains(t, already.Info, strconv.Itoa(os.Getpid()))
}

func TestLockIgnoresPIDReuse(t *testing.T) {
	// PID 1 is always alive but never runs the recorded command line, which
	// is how a reused PID must be told apart from a surviving holder.
	path := lockPath(t)
	require.NoError(t, os.WriteFile(path, []byte("1"), 0o644))
	require.NoError(t, os.WriteFile(path+".cmdline", []byte("steward\x00status\x00"), 0o644))

	m, err := NewManager(path)
	require.NoError(t, err)
	t.Cleanup(func() { m.Unlock() })

	assert.False(t, m.AnotherInstanceIsRunning())
	assert.NoError(t, m.Lock())
}

func TestLockIgnoresStalePID(t *testing.T) {
	// A PID far beyond pid_max never maps to a live process.
	path := lockPath(t)
	require.NoError(t, os.WriteFile(path, []byte("99999999"), 0o644))
	require.NoError(t, os.WriteFile(path+".cmdline", []byte("steward\x00"), 0o644))

	m, err := NewManager(path)
	require.NoError(t, err)
	t.Cleanup(func() { m.Unlock() })

	assert.False(t, m.AnotherInstanceIsRunning())
	assert.NoError(t, m.Lock())
}

func TestLockToleratesGarbageLockFile(t *testing.T) {
	path := lockPath(t)
	require.NoError(t, os.WriteFile(path, []byte("not a pid"), 0o644))

	m, err := NewManager(path)
	require.NoError(t, err)
	t.Cleanup(func() { m.Unlock() })

	assert.False(t, m.AnotherInstanceIsRunning())
	assert.NoError(t, m.Lock())
}

func TestLockFailsFastOnHeldFlock(t *testing.T) {
	// Two managers in the same process: the probe cannot see a holder (the
	// identity is ours), so the second Lock must hit the flock and fail fast
	// instead of waiting.
	path := lockPath(t)
	first, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, first.Lock())
	t.Cleanup(func() { first.Unlock() })

	second, err := NewManager(path)
	require.NoError(t, err)
	t.Cleanup(func() { second.Unlock() })

	err = second.Lock()
	require.Error(t, err)
	if !errors.Is(err, ErrLocked) {
		var already *AlreadyRunningError
		assert.ErrorAs(t, err, &already)
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	m, err := NewManager(lockPath(t))
	require.NoError(t, err)
	require.NoError(t, m.Lock())

	assert.NoError(t, m.Unlock())
	assert.NoError(t, m.Unlock())
}
