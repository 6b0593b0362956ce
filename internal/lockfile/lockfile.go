// Package lockfile provides process-wide mutual exclusion with PID+cmdline
// liveness verification. Linux only: liveness is checked against /proc.
//
// A bare PID file cannot tell a crashed holder from a live one, and a PID
// alone cannot tell the original holder from an unrelated process that
// happens to reuse the PID. The lock therefore stores the holder's full
// command line next to its PID and compares it against the process table.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned when the flock is held by another process although
// the liveness probe said nobody was running. It closes the race between the
// probe and acquisition.
var ErrLocked = errors.New("lock file is locked by another process")

// AlreadyRunningError is returned by Lock when the recorded holder is still
// alive.
type AlreadyRunningError struct {
	// Info describes the holding instance, for humans.
	Info string
}

func (e *AlreadyRunningError) Error() string {
	return "another instance is already running: " + e.Info
}

// Manager handles the lock file and its sibling cmdline file. Creating a
// Manager does not lock. Keep the Manager alive for as long as the lock must
// be held: the flock is tied to its open file descriptor.
type Manager struct {
	path        string
	cmdlinePath string

	lockFile   *os.File
	oldPID     int
	oldCmdline string
}

// NewManager opens (creating if needed) the lock file at path and reads the
// identity of the last holder.
func NewManager(path string) (*Manager, error) {
	m := &Manager{
		path:        path,
		cmdlinePath: path + ".cmdline",
		oldPID:      -1,
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	m.lockFile = f

	data, err := os.ReadFile(path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read lock file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		// Unparseable or empty lock file: treat as never locked.
		return m, nil
	}
	m.oldPID = pid

	// The cmdline record disambiguates PID reuse. Absence is tolerated to
	// allow a transition from other locking schemes that only wrote a PID.
	if cmdline, err := os.ReadFile(m.cmdlinePath); err == nil {
		m.oldCmdline = string(cmdline)
	}

	return m, nil
}

// AnotherInstanceIsRunning reports whether the process that last called Lock
// is still alive. A missing process, or a process whose command line no
// longer matches the recorded one (PID reuse), counts as not running.
func (m *Manager) AnotherInstanceIsRunning() bool {
	if m.oldPID <= 0 {
		return false
	}
	cmdline, err := os.ReadFile(fmt.Sprintf("/proc/%d/cmdline", m.oldPID))
	if err != nil {
		return false
	}
	return m.oldCmdline != "" && string(cmdline) == m.oldCmdline
}

// HolderInfo returns human-readable information about the locking instance.
// Only meaningful when AnotherInstanceIsRunning returned true.
func (m *Manager) HolderInfo() string {
	return fmt.Sprintf("PID %d: %s", m.oldPID, strings.ReplaceAll(m.oldCmdline, "\x00", " "))
}

// Lock acquires the lock or fails fast. It never waits: if the liveness
// probe passes but another process holds the flock anyway, ErrLocked is
// returned immediately.
func (m *Manager) Lock() error {
	if m.AnotherInstanceIsRunning() {
		return &AlreadyRunningError{Info: m.HolderInfo()}
	}

	if err := unix.Flock(int(m.lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return ErrLocked
		}
		return fmt.Errorf("flock lock file: %w", err)
	}

	if err := m.writeIdentity(); err != nil {
		return err
	}
	return nil
}

// Unlock releases the flock. The identity records are left in place; the
// next instance decides their staleness via the liveness probe.
func (m *Manager) Unlock() error {
	if m.lockFile == nil {
		return nil
	}
	_ = unix.Flock(int(m.lockFile.Fd()), unix.LOCK_UN)
	err := m.lockFile.Close()
	m.lockFile = nil
	return err
}

func (m *Manager) writeIdentity() error {
	if err := m.lockFile.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := m.lockFile.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		return fmt.Errorf("write PID: %w", err)
	}
	if err := m.lockFile.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}

	cmdline, err := os.ReadFile("/proc/self/cmdline")
	if err != nil {
		return fmt.Errorf("read own cmdline: %w", err)
	}
	f, err := os.OpenFile(m.cmdlinePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create cmdline file: %w", err)
	}
	if _, err := f.Write(cmdline); err != nil {
		f.Close()
		return fmt.Errorf("write cmdline file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync cmdline file: %w", err)
	}
	return f.Close()
}
