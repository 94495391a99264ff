package accountstore

import (
	"errors"
	"time"

	"github.com/0xysh/codex-switcher/internal/credential"
)

var (
	// ErrAccountNotFound is returned when no account has the requested id.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateName is returned when a name is already used by another account.
	ErrDuplicateName = errors.New("duplicate account name")

	// ErrOrderMismatch is returned when a reorder request is not a permutation of the current ids.
	ErrOrderMismatch = errors.New("account order mismatch")

	// ErrVerificationFailed is returned when a saved secret cannot be read back from the secret store.
	ErrVerificationFailed = errors.New("credential verification failed")
)

// Account is one named identity. Secret holds the real credential in memory;
// the index file only ever sees its redacted form.
type Account struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email,omitempty"`
	PlanType   string          `json:"plan_type,omitempty"`
	Kind       credential.Kind `json:"credential_kind"`
	CreatedAt  time.Time       `json:"created_at"`
	LastUsedAt *time.Time      `json:"last_used_at,omitempty"`

	Secret credential.Secret `json:"-"`

	// CredentialsMissing is set when the index knows the account but the secret
	// store has no credentials for it.
	CredentialsMissing bool `json:"credentials_missing,omitempty"`
}

// NewAPIKeyAccount builds an unsaved account holding an API key.
func NewAPIKeyAccount(name, key string) Account {
	return Account{
		Name:   name,
		Kind:   credential.KindAPIKey,
		Secret: credential.APIKey{Key: key},
	}
}

// NewOAuthAccount builds an unsaved account holding ChatGPT OAuth tokens.
func NewOAuthAccount(name, email, planType string, tokens credential.OAuthTokens) Account {
	return Account{
		Name:     name,
		Email:    email,
		PlanType: planType,
		Kind:     credential.KindChatGPT,
		Secret:   tokens,
	}
}

// Document is the account index: accounts in display order and the active account id.
type Document struct {
	Accounts []Account
	// ActiveAccountID is empty when no account is active.
	ActiveAccountID string
}

// Index returns the position of the account with the given id, or -1.
func (d *Document) Index(id string) int {
	for i := range d.Accounts {
		if d.Accounts[i].ID == id {
			return i
		}
	}
	return -1
}

// Account returns the account with the given id, or nil.
func (d *Document) Account(id string) *Account {
	if i := d.Index(id); i >= 0 {
		return &d.Accounts[i]
	}
	return nil
}

// Active returns the active account, or nil.
func (d *Document) Active() *Account {
	if d.ActiveAccountID == "" {
		return nil
	}
	return d.Account(d.ActiveAccountID)
}

// hasName reports whether an account other than exceptID is called name.
func (d *Document) hasName(name, exceptID string) bool {
	for _, a := range d.Accounts {
		if a.ID != exceptID && a.Name == name {
			return true
		}
	}
	return false
}

// resolveActive prefers the recorded active id when it names an accessible
// account, then the first accessible account in order, then none.
func (d *Document) resolveActive() string {
	if a := d.Active(); a != nil && !a.CredentialsMissing {
		return a.ID
	}
	for _, a := range d.Accounts {
		if !a.CredentialsMissing {
			return a.ID
		}
	}
	return ""
}

// LoadReport describes what reconciliation did while loading the index.
type LoadReport struct {
	// Migrated lists accounts whose plaintext index secrets were moved into the secret store.
	Migrated []string
	// Inaccessible lists accounts kept in the index without retrievable credentials.
	Inaccessible []string
	// Removed lists legacy placeholder entries dropped from the index.
	Removed []string
}

// Changed reports whether reconciliation modified the index.
func (r *LoadReport) Changed() bool {
	return len(r.Migrated) > 0 || len(r.Removed) > 0
}
