package accountstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/0xysh/codex-switcher/internal/credential"
	"github.com/0xysh/codex-switcher/internal/secretstore"
)

// lockRetryDelay is how often a blocked operation retries the index lock.
const lockRetryDelay = 50 * time.Millisecond

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store manages the account index file and keeps it in lock-step with the secret store.
//
// Every operation reloads and reconciles the index, so changes made by another
// process are picked up. Operations are serialized in-process by a mutex and
// across processes by a lock file next to the index.
type Store struct {
	path    string
	secrets secretstore.SecretStore
	now     func() time.Time

	mu   sync.Mutex
	lock *flock.Flock
}

// New creates a Store for the index at path. No I/O is performed until the first operation.
func New(path string, secrets secretstore.SecretStore, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("index path cannot be empty")
	}
	if secrets == nil {
		return nil, fmt.Errorf("missing secret store")
	}

	s := &Store{
		path:    path,
		secrets: secrets,
		now:     time.Now,
		lock:    flock.New(path + ".lock"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the location of the index file.
func (s *Store) Path() string {
	return s.path
}

// withLock runs fn while holding both the in-process and the cross-process lock.
func (s *Store) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("acquiring index lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("acquiring index lock: %s is held by another process", s.lock.Path())
	}
	defer func() { _ = s.lock.Unlock() }()

	return fn()
}

// Load reads and reconciles the index, persisting it if reconciliation changed anything.
func (s *Store) Load(ctx context.Context) (*Document, *LoadReport, error) {
	var (
		doc    *Document
		report *LoadReport
	)
	err := s.withLock(ctx, func() error {
		var err error
		doc, report, err = s.load(ctx)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return doc, report, nil
}

// Save writes the index. Secrets are redacted regardless of what the caller passes.
func (s *Store) Save(ctx context.Context, doc *Document) error {
	return s.withLock(ctx, func() error {
		return s.save(ctx, doc)
	})
}

// update loads the index, applies fn and persists the result. fn returning an
// error aborts without writing.
func (s *Store) update(ctx context.Context, fn func(doc *Document) error) error {
	return s.withLock(ctx, func() error {
		doc, _, err := s.load(ctx)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		return s.save(ctx, doc)
	})
}

// indexFile is the on-disk form of the index.
type indexFile struct {
	Accounts        []accountRecord `json:"accounts"`
	ActiveAccountID *string         `json:"active_account_id,omitempty"`
}

type accountRecord struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Email      string              `json:"email,omitempty"`
	PlanType   string              `json:"plan_type,omitempty"`
	Kind       credential.Kind     `json:"credential_kind"`
	Secret     credential.Envelope `json:"secret"`
	CreatedAt  time.Time           `json:"created_at"`
	LastUsedAt *time.Time          `json:"last_used_at,omitempty"`

	// LegacyPlaceholder marks entries written by the retired compatibility
	// scheme; they carry no recoverable credentials.
	LegacyPlaceholder bool `json:"legacy_placeholder,omitempty"`
}

func (s *Store) readIndex() (*indexFile, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &indexFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading accounts file %s: %w", s.path, err)
	}

	var idx indexFile
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing accounts file %s: %w", s.path, err)
	}
	return &idx, nil
}

// load reconciles the index with the secret store. Caller must hold the lock.
func (s *Store) load(ctx context.Context) (*Document, *LoadReport, error) {
	idx, err := s.readIndex()
	if err != nil {
		return nil, nil, err
	}

	doc := &Document{Accounts: make([]Account, 0, len(idx.Accounts))}
	if idx.ActiveAccountID != nil {
		doc.ActiveAccountID = *idx.ActiveAccountID
	}
	report := &LoadReport{}

	for _, rec := range idx.Accounts {
		if rec.LegacyPlaceholder {
			report.Removed = append(report.Removed, rec.Name)
			continue
		}

		account := Account{
			ID:         rec.ID,
			Name:       rec.Name,
			Email:      rec.Email,
			PlanType:   rec.PlanType,
			Kind:       rec.Kind,
			CreatedAt:  rec.CreatedAt,
			LastUsedAt: rec.LastUsedAt,
		}

		secret, err := s.secrets.Load(ctx, rec.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("loading credentials for account %q: %w", rec.Name, err)
		}

		switch {
		case secret != nil:
			account.Secret = secret
			account.Kind = secret.Kind()
		case credential.Usable(rec.Secret.Secret):
			// Index predates the secret store: move the plaintext secret out of it.
			if err := s.secrets.Save(ctx, rec.ID, rec.Secret.Secret); err != nil {
				return nil, nil, fmt.Errorf("migrating account %q credentials into secret store: %w", rec.Name, err)
			}
			account.Secret = rec.Secret.Secret
			account.Kind = rec.Secret.Secret.Kind()
			report.Migrated = append(report.Migrated, rec.Name)
		default:
			account.Secret = rec.Secret.Secret
			account.CredentialsMissing = true
			report.Inaccessible = append(report.Inaccessible, rec.Name)
		}

		doc.Accounts = append(doc.Accounts, account)
	}

	recorded := doc.ActiveAccountID
	doc.ActiveAccountID = doc.resolveActive()

	if len(report.Removed) > 0 {
		slog.WarnContext(ctx, "removed legacy account records without credentials",
			"count", len(report.Removed), "accounts", report.Removed)
	}
	if len(report.Migrated) > 0 {
		slog.InfoContext(ctx, "migrated account credentials into secret store",
			"count", len(report.Migrated), "accounts", report.Migrated)
	}
	if len(report.Inaccessible) > 0 {
		slog.WarnContext(ctx, "accounts have metadata but no stored credentials",
			"count", len(report.Inaccessible), "accounts", report.Inaccessible)
	}

	if report.Changed() || recorded != doc.ActiveAccountID {
		if err := s.save(ctx, doc); err != nil {
			return nil, nil, err
		}
	}

	return doc, report, nil
}

// save writes the redacted index atomically with 0600 permissions. Caller must hold the lock.
func (s *Store) save(ctx context.Context, doc *Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx := indexFile{Accounts: make([]accountRecord, 0, len(doc.Accounts))}
	if doc.ActiveAccountID != "" {
		active := doc.ActiveAccountID
		idx.ActiveAccountID = &active
	}
	for _, a := range doc.Accounts {
		var redacted credential.Secret
		if a.Secret != nil {
			redacted = credential.Redact(a.Secret)
		}
		idx.Accounts = append(idx.Accounts, accountRecord{
			ID:         a.ID,
			Name:       a.Name,
			Email:      a.Email,
			PlanType:   a.PlanType,
			Kind:       a.Kind,
			Secret:     credential.Envelope{Secret: redacted},
			CreatedAt:  a.CreatedAt,
			LastUsedAt: a.LastUsedAt,
		})
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing accounts store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, "accounts-*.tmp")
	if err != nil {
		return fmt.Errorf("writing accounts file: %w", err)
	}
	tempName := tempFile.Name()
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(data); err != nil {
		return fmt.Errorf("writing accounts file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("writing accounts file: %w", err)
	}
	if err := os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("writing accounts file %s: %w", s.path, err)
	}

	if err := os.Chmod(s.path, 0600); err != nil {
		return fmt.Errorf("restricting accounts file permissions: %w", err)
	}
	return nil
}
