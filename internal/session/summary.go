package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/0xysh/codex-switcher/internal/credential"
)

// Status classifies the current session file.
type Status string

const (
	StatusMissing Status = "missing"
	StatusReady   Status = "ready"
	StatusInvalid Status = "invalid"
	StatusError   Status = "error"
)

// Summary is a read-only diagnostic view of the current session file.
type Summary struct {
	Status       Status          `json:"status" yaml:"status"`
	Mode         credential.Kind `json:"auth_mode,omitempty" yaml:"auth_mode,omitempty"`
	Email        string          `json:"email,omitempty" yaml:"email,omitempty"`
	PlanType     string          `json:"plan_type,omitempty" yaml:"plan_type,omitempty"`
	AuthFilePath string          `json:"auth_file_path" yaml:"auth_file_path"`
	SnapshotsDir string          `json:"snapshots_dir_path" yaml:"snapshots_dir_path"`
	LastModified *time.Time      `json:"last_modified_at,omitempty" yaml:"last_modified_at,omitempty"`
	Message      string          `json:"message,omitempty" yaml:"message,omitempty"`
}

// Summarize inspects the session file without modifying anything.
func (s *Switcher) Summarize() Summary {
	path := s.paths.AuthFile()
	summary := Summary{
		AuthFilePath: path,
		SnapshotsDir: s.paths.SnapshotsDir,
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		summary.Status = StatusMissing
		summary.Message = "No active Codex session file was found"
		return summary
	}
	if err == nil {
		modified := info.ModTime().UTC()
		summary.LastModified = &modified
	}

	data, err := os.ReadFile(path)
	if err != nil {
		summary.Status = StatusError
		summary.Message = fmt.Sprintf("Failed to read auth.json: %v", err)
		return summary
	}

	auth, err := parseAuthFile(data)
	if err != nil {
		summary.Status = StatusError
		summary.Message = fmt.Sprintf("Failed to parse auth.json: %v", err)
		return summary
	}

	return describe(auth, summary)
}

func describe(auth *AuthFile, summary Summary) Summary {
	if !blank(auth.APIKey()) {
		summary.Status = StatusReady
		summary.Mode = credential.KindAPIKey
		return summary
	}

	if t := auth.Tokens; t != nil {
		if blank(t.IDToken) || blank(t.AccessToken) || blank(t.RefreshToken) {
			summary.Status = StatusInvalid
			summary.Message = "auth.json contains empty token values"
			return summary
		}

		claims := credential.ParseIDTokenClaims(t.IDToken)
		summary.Status = StatusReady
		summary.Mode = credential.KindChatGPT
		summary.Email = claims.Email
		summary.PlanType = claims.PlanType
		return summary
	}

	summary.Status = StatusInvalid
	summary.Message = ErrNoCredentials.Error()
	return summary
}
