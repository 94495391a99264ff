package secretstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/0xysh/codex-switcher/internal/credential"
)

// DefaultService is the keyring namespace shared by all account entries.
const DefaultService = "codex-switcher"

// KeyringStore provides OS-native secure credential storage for account secrets.
// Uses macOS Keychain, Windows Credential Manager, or Linux Secret Service.
type KeyringStore struct {
	service string
}

// Compile-time check to ensure KeyringStore implements SecretStore
var _ SecretStore = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore that stores entries under the given service name.
func NewKeyringStore(service string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}

	return &KeyringStore{
		service: service,
	}, nil
}

// Save writes the secret to the system keyring, overwriting any existing value.
func (k *KeyringStore) Save(ctx context.Context, accountID string, secret credential.Secret) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeSecret(secret)
	if err != nil {
		return fmt.Errorf("serializing secret for account %s: %w", accountID, err)
	}

	if err := keyring.Set(k.service, entryKey(accountID), string(data)); err != nil {
		return fmt.Errorf("storing credentials for account %s: %w", accountID, err)
	}
	return nil
}

// Load returns the secret from the system keyring, or nil if no entry exists.
func (k *KeyringStore) Load(ctx context.Context, accountID string) (credential.Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := keyring.Get(k.service, entryKey(accountID))
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials for account %s: %w", accountID, err)
	}

	secret, err := decodeSecret([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("parsing keyring secret for account %s: %w", accountID, err)
	}
	return secret, nil
}

// Delete removes the entry from the system keyring. A missing entry is not an error.
func (k *KeyringStore) Delete(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := keyring.Delete(k.service, entryKey(accountID))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting credentials for account %s: %w", accountID, err)
	}
	return nil
}

// storedSecret is the serialized value kept in the backend.
type storedSecret struct {
	AuthData credential.Envelope `json:"auth_data"`
}

func encodeSecret(secret credential.Secret) ([]byte, error) {
	if secret == nil {
		return nil, fmt.Errorf("secret cannot be nil")
	}
	return json.Marshal(storedSecret{AuthData: credential.Envelope{Secret: secret}})
}

func decodeSecret(data []byte) (credential.Secret, error) {
	var stored storedSecret
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	if stored.AuthData.Secret == nil {
		return nil, fmt.Errorf("missing auth_data")
	}
	return stored.AuthData.Secret, nil
}
