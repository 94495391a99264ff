package accountstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/0xysh/codex-switcher/internal/credential"
)

// List returns the reconciled accounts in display order.
func (s *Store) List(ctx context.Context) ([]Account, error) {
	doc, _, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Accounts, nil
}

// Get returns the account with the given id.
func (s *Store) Get(ctx context.Context, id string) (Account, error) {
	doc, _, err := s.Load(ctx)
	if err != nil {
		return Account{}, err
	}
	a := doc.Account(id)
	if a == nil {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return *a, nil
}

// Active returns the active account, or nil when none is active.
func (s *Store) Active(ctx context.Context) (*Account, error) {
	doc, _, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	a := doc.Active()
	if a == nil {
		return nil, nil
	}
	active := *a
	return &active, nil
}

// Add stores the account's secret, verifies it can be read back and appends
// the account to the index. An empty ID is assigned a fresh UUID. The account
// becomes active when no other account is.
func (s *Store) Add(ctx context.Context, account Account) (Account, error) {
	if account.Secret == nil {
		return Account{}, fmt.Errorf("account %q has no credentials", account.Name)
	}
	if strings.TrimSpace(account.Name) == "" {
		return Account{}, fmt.Errorf("account name cannot be empty")
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	account.Kind = account.Secret.Kind()
	account.CredentialsMissing = false
	if account.CreatedAt.IsZero() {
		account.CreatedAt = s.now().UTC()
	}

	err := s.withLock(ctx, func() error {
		doc, _, err := s.load(ctx)
		if err != nil {
			return err
		}
		if doc.Index(account.ID) >= 0 {
			return fmt.Errorf("account id %s already exists", account.ID)
		}
		if doc.hasName(account.Name, "") {
			return fmt.Errorf("%w: %q", ErrDuplicateName, account.Name)
		}

		if err := s.saveVerified(ctx, account.ID, account.Secret); err != nil {
			s.discardSecret(ctx, account.ID)
			return err
		}

		doc.Accounts = append(doc.Accounts, account)
		if doc.ActiveAccountID == "" {
			doc.ActiveAccountID = account.ID
		}

		if err := s.save(ctx, doc); err != nil {
			s.discardSecret(ctx, account.ID)
			return err
		}
		return nil
	})
	if err != nil {
		return Account{}, err
	}

	slog.InfoContext(ctx, "account added", "account_id", account.ID, "kind", account.Kind)
	return account, nil
}

// Remove deletes the account from the index and then, best-effort, its secret.
// If it was active, the first remaining account becomes active.
func (s *Store) Remove(ctx context.Context, id string) error {
	err := s.update(ctx, func(doc *Document) error {
		i := doc.Index(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		doc.Accounts = append(doc.Accounts[:i], doc.Accounts[i+1:]...)

		if doc.ActiveAccountID == id {
			doc.ActiveAccountID = ""
			if len(doc.Accounts) > 0 {
				doc.ActiveAccountID = doc.Accounts[0].ID
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Metadata removal is committed; a leftover secret is only logged.
	if err := s.secrets.Delete(ctx, id); err != nil {
		slog.WarnContext(ctx, "failed to delete credentials of removed account",
			"account_id", id, "error", err)
	}
	return nil
}

// SetActive marks the account as the active one.
func (s *Store) SetActive(ctx context.Context, id string) error {
	return s.update(ctx, func(doc *Document) error {
		if doc.Index(id) < 0 {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		doc.ActiveAccountID = id
		return nil
	})
}

// Reorder rearranges accounts to match ids, which must be a permutation of the current ids.
func (s *Store) Reorder(ctx context.Context, ids []string) error {
	return s.update(ctx, func(doc *Document) error {
		if len(ids) != len(doc.Accounts) {
			return fmt.Errorf("%w: got %d ids, expected %d", ErrOrderMismatch, len(ids), len(doc.Accounts))
		}

		seen := make(map[string]bool, len(ids))
		reordered := make([]Account, 0, len(ids))
		for _, id := range ids {
			if seen[id] {
				return fmt.Errorf("%w: duplicate id %s", ErrOrderMismatch, id)
			}
			seen[id] = true

			a := doc.Account(id)
			if a == nil {
				return fmt.Errorf("%w: unknown id %s", ErrOrderMismatch, id)
			}
			reordered = append(reordered, *a)
		}

		doc.Accounts = reordered
		return nil
	})
}

// Metadata holds optional descriptive fields; nil fields are left unchanged.
type Metadata struct {
	Name     *string
	Email    *string
	PlanType *string
}

// UpdateMetadata applies the provided fields to the account.
func (s *Store) UpdateMetadata(ctx context.Context, id string, meta Metadata) error {
	return s.update(ctx, func(doc *Document) error {
		a := doc.Account(id)
		if a == nil {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}

		if meta.Name != nil {
			if strings.TrimSpace(*meta.Name) == "" {
				return fmt.Errorf("account name cannot be empty")
			}
			if doc.hasName(*meta.Name, id) {
				return fmt.Errorf("%w: %q", ErrDuplicateName, *meta.Name)
			}
			a.Name = *meta.Name
		}
		if meta.Email != nil {
			a.Email = *meta.Email
		}
		if meta.PlanType != nil {
			a.PlanType = *meta.PlanType
		}
		return nil
	})
}

// ReplaceOAuthCredentials swaps the account's credentials for fresh OAuth
// tokens, keeping its id and name. The new tokens are stored and verified
// before the index is updated; if the index write fails the previous secret
// is restored. Empty email or planType leave the current values in place.
func (s *Store) ReplaceOAuthCredentials(ctx context.Context, id string, tokens credential.OAuthTokens, email, planType string) (Account, error) {
	if !credential.Usable(tokens) {
		return Account{}, fmt.Errorf("replacement tokens for account %s are incomplete", id)
	}

	var updated Account
	err := s.withLock(ctx, func() error {
		doc, _, err := s.load(ctx)
		if err != nil {
			return err
		}
		a := doc.Account(id)
		if a == nil {
			return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}

		previous, err := s.secrets.Load(ctx, id)
		if err != nil {
			return fmt.Errorf("reading current credentials: %w", err)
		}

		if err := s.saveVerified(ctx, id, tokens); err != nil {
			s.restoreSecret(ctx, id, previous)
			return err
		}

		a.Kind = credential.KindChatGPT
		a.Secret = tokens
		a.CredentialsMissing = false
		if email != "" {
			a.Email = email
		}
		if planType != "" {
			a.PlanType = planType
		}

		if err := s.save(ctx, doc); err != nil {
			s.restoreSecret(ctx, id, previous)
			return err
		}
		updated = *a
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return updated, nil
}

// Touch stamps last_used_at. Unknown ids are ignored.
func (s *Store) Touch(ctx context.Context, id string) error {
	return s.withLock(ctx, func() error {
		doc, _, err := s.load(ctx)
		if err != nil {
			return err
		}
		a := doc.Account(id)
		if a == nil {
			return nil
		}
		now := s.now().UTC()
		a.LastUsedAt = &now
		return s.save(ctx, doc)
	})
}

// saveVerified writes the secret and reads it back, since some vaults accept
// writes they never persist.
func (s *Store) saveVerified(ctx context.Context, id string, secret credential.Secret) error {
	if err := s.secrets.Save(ctx, id, secret); err != nil {
		return fmt.Errorf("saving credentials for account %s: %w", id, err)
	}

	got, err := s.secrets.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: account %s: %w", ErrVerificationFailed, id, err)
	}
	if got == nil {
		return fmt.Errorf("%w: account %s: credentials were not persisted", ErrVerificationFailed, id)
	}
	if !credential.Equal(got, secret) {
		return fmt.Errorf("%w: account %s: stored credentials differ from written ones", ErrVerificationFailed, id)
	}
	return nil
}

// discardSecret rolls back a secret written for an account that never made it into the index.
func (s *Store) discardSecret(ctx context.Context, id string) {
	if err := s.secrets.Delete(context.WithoutCancel(ctx), id); err != nil {
		slog.WarnContext(ctx, "failed to roll back credentials", "account_id", id, "error", err)
	}
}

// restoreSecret puts back the secret that was in place before a failed replacement.
func (s *Store) restoreSecret(ctx context.Context, id string, previous credential.Secret) {
	if previous == nil {
		s.discardSecret(ctx, id)
		return
	}
	if err := s.secrets.Save(context.WithoutCancel(ctx), id, previous); err != nil {
		slog.WarnContext(ctx, "failed to restore previous credentials", "account_id", id, "error", err)
	}
}
