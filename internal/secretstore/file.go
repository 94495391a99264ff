package secretstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/0xysh/codex-switcher/internal/credential"
)

// FileStore keeps one secret file per account in a private directory.
// Writes use temp file + rename for crash safety.
type FileStore struct {
	dir string
}

// Compile-time check to ensure FileStore implements SecretStore
var _ SecretStore = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at dir, creating it with 0700
// permissions if it doesn't exist.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		dir: dir,
	}, nil
}

func (f *FileStore) path(accountID string) (string, error) {
	if accountID == "" || strings.ContainsAny(accountID, `/\`) {
		return "", fmt.Errorf("invalid account id %q", accountID)
	}
	// ':' is not portable in file names
	return filepath.Join(f.dir, strings.ReplaceAll(entryKey(accountID), ":", "_")+".json"), nil
}

// Save atomically writes the secret with 0600 permissions.
func (f *FileStore) Save(ctx context.Context, accountID string, secret credential.Secret) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := f.path(accountID)
	if err != nil {
		return err
	}

	data, err := encodeSecret(secret)
	if err != nil {
		return fmt.Errorf("serializing secret for account %s: %w", accountID, err)
	}

	// Create secure temp file in same directory for atomic rename
	tempFile, err := os.CreateTemp(f.dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(data); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tempName, target); err != nil {
		return err
	}

	// Set secure file permissions (0600 = rw-------)
	return os.Chmod(target, 0600)
}

// Load returns the stored secret, or nil if the account has no file. Refuses
// to read files with permissions other than 0600.
func (f *FileStore) Load(ctx context.Context, accountID string) (credential.Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := f.path(accountID)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm() != 0600 {
		return nil, fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", target, info.Mode().Perm())
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return nil, err
	}

	secret, err := decodeSecret(data)
	if err != nil {
		return nil, fmt.Errorf("parsing secret file %s: %w", target, err)
	}
	return secret, nil
}

// Delete removes the account's file. A missing file is not an error.
func (f *FileStore) Delete(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := f.path(accountID)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting credentials for account %s: %w", accountID, err)
	}
	return nil
}
