package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/0xysh/codex-switcher/internal/accountstore"
	"github.com/0xysh/codex-switcher/internal/credential"
)

// Option configures a Switcher.
type Option func(*Switcher)

// WithClock overrides the time source used for last_refresh and snapshot names.
func WithClock(now func() time.Time) Option {
	return func(s *Switcher) {
		s.now = now
	}
}

// Switcher renders accounts into the Codex session file and snapshots it.
type Switcher struct {
	paths Paths
	now   func() time.Time
}

// NewSwitcher creates a Switcher. Both paths are required.
func NewSwitcher(paths Paths, opts ...Option) (*Switcher, error) {
	if paths.CodexHome == "" {
		return nil, fmt.Errorf("codex home cannot be empty")
	}
	if paths.SnapshotsDir == "" {
		return nil, fmt.Errorf("snapshots directory cannot be empty")
	}

	s := &Switcher{
		paths: paths,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Paths returns the configured locations.
func (s *Switcher) Paths() Paths {
	return s.paths
}

// Activate writes the account's credential as the current Codex session.
// Accounts whose secret is missing or redacted are refused before anything is written.
func (s *Switcher) Activate(ctx context.Context, account accountstore.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !credential.Usable(account.Secret) {
		return fmt.Errorf("%w: %q; re-add it to restore access", ErrUnusableCredentials, account.Name)
	}

	auth, err := renderAuthFile(account.Secret, s.now())
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(auth, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing auth.json: %w", err)
	}

	if err := writeFileAtomic(s.paths.AuthFile(), data); err != nil {
		return err
	}

	slog.InfoContext(ctx, "activated account",
		"account_id", account.ID,
		"kind", account.Secret.Kind(),
		"path", s.paths.AuthFile(),
	)
	return nil
}

// Import reads a session file from path and returns an unsaved account named name.
// Email and plan are taken from the id token when it can be decoded.
func (s *Switcher) Import(path, name string) (accountstore.Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return accountstore.Account{}, fmt.Errorf("reading auth file %s: %w", path, err)
	}
	auth, err := parseAuthFile(data)
	if err != nil {
		return accountstore.Account{}, fmt.Errorf("parsing auth file %s: %w", path, err)
	}

	secret, err := auth.Secret()
	if err != nil {
		return accountstore.Account{}, fmt.Errorf("importing %s: %w", path, err)
	}

	switch v := secret.(type) {
	case credential.APIKey:
		return accountstore.NewAPIKeyAccount(name, v.Key), nil
	case credential.OAuthTokens:
		claims := credential.ParseIDTokenClaims(v.IDToken)
		if v.AccountID == "" {
			v.AccountID = claims.AccountID
		}
		return accountstore.NewOAuthAccount(name, claims.Email, claims.PlanType, v), nil
	default:
		return accountstore.Account{}, fmt.Errorf("unsupported secret type %T", secret)
	}
}

// ReadCurrent parses the current session file. It returns nil when the file does not exist.
func (s *Switcher) ReadCurrent() (*AuthFile, error) {
	path := s.paths.AuthFile()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading auth.json %s: %w", path, err)
	}

	auth, err := parseAuthFile(data)
	if err != nil {
		return nil, fmt.Errorf("parsing auth.json %s: %w", path, err)
	}
	return auth, nil
}

// HasActiveLogin reports whether the session file exists, parses and holds a credential.
func (s *Switcher) HasActiveLogin() (bool, error) {
	auth, err := s.ReadCurrent()
	if err != nil {
		return false, err
	}
	return auth != nil && auth.HasCredentials(), nil
}

// writeFileAtomic replaces path with data through a temp file in the same
// directory, creating the directory with 0700 and the file with 0600.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, ".auth-*.tmp")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	tempName := tempFile.Name()
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return os.Chmod(path, 0600)
}
