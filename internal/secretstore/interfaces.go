package secretstore

import (
	"context"

	"github.com/0xysh/codex-switcher/internal/credential"
)

// SecretStore reads and writes per-account secrets to persistent storage.
type SecretStore interface {
	// Save persists the secret for the account, overwriting any existing value.
	Save(ctx context.Context, accountID string, secret credential.Secret) error

	// Load returns the stored secret. Returns a nil Secret and nil error if no
	// entry exists; errors are reserved for storage access failures.
	Load(ctx context.Context, accountID string) (credential.Secret, error)

	// Delete removes the stored secret. Deleting a missing entry succeeds.
	Delete(ctx context.Context, accountID string) error
}

// entryKey is the per-account key within the store's namespace.
func entryKey(accountID string) string {
	return "account:" + accountID
}
