package session

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events produced by one atomic rewrite.
const watchDebounce = 150 * time.Millisecond

// Watch calls fn with a fresh summary once at start and again whenever the
// session file's content changes, until ctx is done. The Codex home directory
// is watched rather than the file itself so atomic replacements are seen.
func (s *Switcher) Watch(ctx context.Context, fn func(Summary)) error {
	if err := os.MkdirAll(s.paths.CodexHome, 0700); err != nil {
		return fmt.Errorf("creating codex home %s: %w", s.paths.CodexHome, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(s.paths.CodexHome); err != nil {
		return fmt.Errorf("watching %s: %w", s.paths.CodexHome, err)
	}

	target := filepath.Clean(s.paths.AuthFile())
	lastHash := contentHash(target)
	fn(s.Summarize())

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			slog.DebugContext(ctx, "session file event", "op", event.Op.String())
			timer.Reset(watchDebounce)

		case <-timer.C:
			hash := contentHash(target)
			if hash == lastHash {
				continue
			}
			lastHash = hash
			fn(s.Summarize())

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "file watcher error", "error", err)
		}
	}
}

// contentHash returns a digest of the file, or "" when it cannot be read.
func contentHash(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return string(sum[:])
}
