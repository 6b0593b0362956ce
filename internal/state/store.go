// Package state persists the per-container instance-identity records that
// tie a configured container name to the engine-side instance it last
// started, across process invocations.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	nameSuffix = ".instance-name"
	idSuffix   = ".instance-id"

	// previousSuffix marks the record that was in place before the last
	// overwrite. Kept for postmortem debugging only, never read back.
	previousSuffix = ".previous"
)

// Store keeps one small file per record under a directory. Writes are synced
// before they are relied on by a later invocation.
type Store struct {
	dir string
}

// NewStore returns a Store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// InstanceName returns the engine-side name of the container's last known
// instance, or "" if none was recorded.
func (s *Store) InstanceName(container string) string {
	return s.read(container + nameSuffix)
}

// InstanceID returns the engine-side ID of the container's last known
// instance, or "" if none was recorded.
func (s *Store) InstanceID(container string) string {
	return s.read(container + idSuffix)
}

// SetInstance records a freshly started instance. Existing records are moved
// aside under a .previous suffix before being overwritten.
func (s *Store) SetInstance(container, instanceName, instanceID string) error {
	if err := s.write(container+nameSuffix, instanceName); err != nil {
		return err
	}
	return s.write(container+idSuffix, instanceID)
}

func (s *Store) read(file string) string {
	data, err := os.ReadFile(filepath.Join(s.dir, file))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (s *Store) write(file, value string) error {
	path := filepath.Join(s.dir, file)

	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+previousSuffix); err != nil {
			return fmt.Errorf("preserve previous record %s: %w", file, err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create record %s: %w", file, err)
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return fmt.Errorf("write record %s: %w", file, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync record %s: %w", file, err)
	}
	return f.Close()
}
