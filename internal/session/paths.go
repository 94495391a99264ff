package session

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// CodexHomeEnv overrides the Codex CLI home directory.
	CodexHomeEnv = "CODEX_HOME"

	// AuthFileName is the session file inside the Codex home directory.
	AuthFileName = "auth.json"
)

// Paths locates the session file and the snapshot directory.
type Paths struct {
	CodexHome    string
	SnapshotsDir string
}

// AuthFile returns the session file path.
func (p Paths) AuthFile() string {
	return filepath.Join(p.CodexHome, AuthFileName)
}

// DefaultCodexHome returns $CODEX_HOME, falling back to ~/.codex.
func DefaultCodexHome() (string, error) {
	if home := os.Getenv(CodexHomeEnv); home != "" {
		return home, nil
	}

	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(userHome, ".codex"), nil
}
