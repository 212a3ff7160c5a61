package authstore

import (
	"fmt"
	"os"
	"path/filepath"
)

// localStore manages the per-session auth directories under a configured
// root. The directory either fully exists (recoverable session) or is
// absent (fresh).
type localStore struct {
	root string
}

func newLocalStore(root string) *localStore {
	return &localStore{root: root}
}

// dir returns the session's directory path without creating it.
func (l *localStore) dir(sessionID string) string {
	return filepath.Join(l.root, sessionID)
}

// ensure creates the session directory if missing and returns its path.
func (l *localStore) ensure(sessionID string) (string, error) {
	dir := l.dir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}
	return dir, nil
}

// has reports whether the session directory holds at least one file.
func (l *localStore) has(sessionID string) bool {
	entries, err := os.ReadDir(l.dir(sessionID))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() {
			return true
		}
	}
	return false
}

// files lists the regular files directly under the session directory.
func (l *localStore) files(sessionID string) ([]string, error) {
	dir := l.dir(sessionID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read session directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// purge removes the session directory and everything under it.
func (l *localStore) purge(sessionID string) error {
	if err := os.RemoveAll(l.dir(sessionID)); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}
	return nil
}
