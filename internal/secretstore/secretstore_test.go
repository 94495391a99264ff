package secretstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"

	"github.com/0xysh/codex-switcher/internal/credential"
)

// newStores returns every backend, each isolated for the test.
func newStores(t *testing.T) map[string]SecretStore {
	t.Helper()
	keyring.MockInit()

	ks, err := NewKeyringStore("codex-switcher-test")
	if err != nil {
		t.Fatalf("NewKeyringStore failed: %v", err)
	}
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "secrets"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return map[string]SecretStore{"keyring": ks, "file": fs}
}

func TestStoreRoundTrip(t *testing.T) {
	secrets := []credential.Secret{
		credential.APIKey{Key: "sk-test"},
		credential.OAuthTokens{IDToken: "i", AccessToken: "a", RefreshToken: "r", AccountID: "p"},
	}

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, secret := range secrets {
				if err := store.Save(ctx, "acc-1", secret); err != nil {
					t.Fatalf("Save failed: %v", err)
				}
				got, err := store.Load(ctx, "acc-1")
				if err != nil {
					t.Fatalf("Load failed: %v", err)
				}
				if !credential.Equal(got, secret) {
					t.Errorf("Load() = %+v, want %+v", got, secret)
				}
			}
		})
	}
}

func TestStoreMissingIsNotAnError(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := store.Load(context.Background(), "missing")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if got != nil {
				t.Errorf("Load() = %+v, want nil", got)
			}
		})
	}
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Save(ctx, "acc-1", credential.APIKey{Key: "sk-test"}); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			for i := range 2 {
				if err := store.Delete(ctx, "acc-1"); err != nil {
					t.Fatalf("Delete #%d failed: %v", i+1, err)
				}
			}
			got, err := store.Load(ctx, "acc-1")
			if err != nil || got != nil {
				t.Errorf("Load() after delete = %+v, %v; want nil, nil", got, err)
			}
		})
	}
}

func TestStoreHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Save(ctx, "acc-1", credential.APIKey{Key: "sk"}); !errors.Is(err, context.Canceled) {
				t.Errorf("Save() error = %v, want context.Canceled", err)
			}
			if _, err := store.Load(ctx, "acc-1"); !errors.Is(err, context.Canceled) {
				t.Errorf("Load() error = %v, want context.Canceled", err)
			}
		})
	}
}

func TestKeyringStoreUsesNamespacedKey(t *testing.T) {
	keyring.MockInit()
	store, err := NewKeyringStore("codex-switcher-test")
	if err != nil {
		t.Fatalf("NewKeyringStore failed: %v", err)
	}

	if err := store.Save(context.Background(), "abc", credential.APIKey{Key: "sk-test"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	raw, err := keyring.Get("codex-switcher-test", "account:abc")
	if err != nil {
		t.Fatalf("raw keyring.Get failed: %v", err)
	}
	if raw != `{"auth_data":{"type":"api_key","key":"sk-test"}}` {
		t.Errorf("stored value = %s", raw)
	}
}

func TestKeyringStoreSurfacesVaultErrors(t *testing.T) {
	keyring.MockInitWithError(errors.New("vault locked"))
	t.Cleanup(keyring.MockInit)

	store, err := NewKeyringStore("codex-switcher-test")
	if err != nil {
		t.Fatalf("NewKeyringStore failed: %v", err)
	}

	if _, err := store.Load(context.Background(), "acc-1"); err == nil || !strings.Contains(err.Error(), "vault locked") {
		t.Errorf("Load() error = %v, want vault error", err)
	}
	if err := store.Delete(context.Background(), "acc-1"); err == nil {
		t.Error("Delete() should surface non-not-found errors")
	}
}

func TestNewKeyringStoreRequiresService(t *testing.T) {
	if _, err := NewKeyringStore(""); err == nil {
		t.Error("expected error for empty service")
	}
}

func TestFileStorePermissions(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "secrets")
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	ctx := context.Background()
	if err := store.Save(ctx, "acc-1", credential.APIKey{Key: "sk-test"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	path := filepath.Join(dir, "account_acc-1.json")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("wrong permissions: got %o, want 0600", info.Mode().Perm())
	}

	dirInfo, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("Stat dir failed: %v", err)
	}
	if dirInfo.Mode().Perm() != 0700 {
		t.Errorf("wrong dir permissions: got %o, want 0700", dirInfo.Mode().Perm())
	}

	if err := os.Chmod(path, 0644); err != nil {
		t.Fatalf("Chmod failed: %v", err)
	}
	if _, err := store.Load(ctx, "acc-1"); err == nil || !strings.Contains(err.Error(), "insecure permissions") {
		t.Errorf("Load() error = %v, want insecure permissions error", err)
	}
}

func TestFileStoreRejectsPathLikeIDs(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	for _, id := range []string{"", "../escape", `a\b`} {
		if err := store.Save(context.Background(), id, credential.APIKey{Key: "sk"}); err == nil {
			t.Errorf("Save(%q) should fail", id)
		}
	}
}
