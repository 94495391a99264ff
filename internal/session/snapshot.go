package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// maxSnapshotAttempts bounds the collision suffix within one second.
const maxSnapshotAttempts = 1000

const snapshotTimeLayout = "20060102T150405Z"

// snapshotName returns auth-snapshot-<UTC timestamp>[-n].json; n == 0 has no suffix.
func snapshotName(at time.Time, n int) string {
	stamp := at.UTC().Format(snapshotTimeLayout)
	if n == 0 {
		return "auth-snapshot-" + stamp + ".json"
	}
	return fmt.Sprintf("auth-snapshot-%s-%d.json", stamp, n)
}

// Snapshot copies the current session file's bytes into a new file in the
// snapshots directory and returns its path. The session file must exist and
// parse. Existing snapshots are never overwritten.
func (s *Switcher) Snapshot() (string, error) {
	path := s.paths.AuthFile()
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading auth.json %s: %w", path, err)
	}
	if _, err := parseAuthFile(data); err != nil {
		return "", fmt.Errorf("parsing auth.json %s: %w", path, err)
	}

	dir := s.paths.SnapshotsDir
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating snapshots directory %s: %w", dir, err)
	}
	if err := os.Chmod(dir, 0700); err != nil {
		return "", fmt.Errorf("restricting snapshots directory permissions: %w", err)
	}

	now := s.now()
	for n := range maxSnapshotAttempts {
		target := filepath.Join(dir, snapshotName(now, n))
		created, err := writeExclusive(target, data)
		if err != nil {
			return "", err
		}
		if created {
			return target, nil
		}
	}

	return "", fmt.Errorf("no unique snapshot filename left in %s", dir)
}

// writeExclusive creates target with 0600 and writes data. It reports false
// without error when target already exists.
func writeExclusive(target string, data []byte) (bool, error) {
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating snapshot file %s: %w", target, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("writing snapshot file %s: %w", target, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("writing snapshot file %s: %w", target, err)
	}
	if err := os.Chmod(target, 0600); err != nil {
		return false, fmt.Errorf("restricting snapshot file permissions: %w", err)
	}
	return true, nil
}
