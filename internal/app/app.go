package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/0xysh/codex-switcher/internal/accountstore"
	"github.com/0xysh/codex-switcher/internal/credential"
	"github.com/0xysh/codex-switcher/internal/login"
	"github.com/0xysh/codex-switcher/internal/oauthlistener"
	"github.com/0xysh/codex-switcher/internal/secretstore"
	"github.com/0xysh/codex-switcher/internal/session"
)

// ErrNotOAuthAccount is returned when reconnecting an account that does not use ChatGPT sign-in.
var ErrNotOAuthAccount = errors.New("reconnect is only available for ChatGPT OAuth accounts")

// App composes the account store, session switcher and login coordinator
// into the operations exposed to the command layer.
type App struct {
	cfg      *Config
	accounts *accountstore.Store
	switcher *session.Switcher
	logins   *login.Coordinator
}

// New creates a new App instance from a configuration with defaults applied.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	secrets, err := cfg.Secrets.NewSecretStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create secret store: %w", err)
	}

	listener := oauthlistener.New(int(cfg.Login.CallbackPort),
		oauthlistener.WithTimeout(cfg.Login.Timeout),
	)

	return newApp(cfg, secrets, listener)
}

// newApp wires the components around the given secret store and login listener.
func newApp(cfg *Config, secrets secretstore.SecretStore, listener login.Listener, opts ...accountstore.Option) (*App, error) {
	accounts, err := accountstore.New(cfg.AccountsFile(), secrets, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create account store: %w", err)
	}

	switcher, err := session.NewSwitcher(session.Paths{
		CodexHome:    cfg.Paths.CodexHome,
		SnapshotsDir: cfg.Paths.SnapshotsDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session switcher: %w", err)
	}

	return &App{
		cfg:      cfg,
		accounts: accounts,
		switcher: switcher,
		logins:   login.NewCoordinator(listener),
	}, nil
}

// AccountInfo is the display view of an account. It never carries secrets.
type AccountInfo struct {
	ID                 string          `json:"id" yaml:"id"`
	Name               string          `json:"name" yaml:"name"`
	Email              string          `json:"email,omitempty" yaml:"email,omitempty"`
	PlanType           string          `json:"plan_type,omitempty" yaml:"plan_type,omitempty"`
	Kind               credential.Kind `json:"auth_mode" yaml:"auth_mode"`
	IsActive           bool            `json:"is_active" yaml:"is_active"`
	CredentialsMissing bool            `json:"credentials_missing,omitempty" yaml:"credentials_missing,omitempty"`
	CreatedAt          time.Time       `json:"created_at" yaml:"created_at"`
	LastUsedAt         *time.Time      `json:"last_used_at,omitempty" yaml:"last_used_at,omitempty"`
}

func newAccountInfo(a accountstore.Account, activeID string) AccountInfo {
	return AccountInfo{
		ID:                 a.ID,
		Name:               a.Name,
		Email:              a.Email,
		PlanType:           a.PlanType,
		Kind:               a.Kind,
		IsActive:           a.ID == activeID,
		CredentialsMissing: a.CredentialsMissing,
		CreatedAt:          a.CreatedAt,
		LastUsedAt:         a.LastUsedAt,
	}
}

// Listing is the account list together with anything reconciliation reported.
type Listing struct {
	Accounts []AccountInfo
	Report   *accountstore.LoadReport
}

// ListAccounts returns all accounts in display order.
func (a *App) ListAccounts(ctx context.Context) (*Listing, error) {
	doc, report, err := a.accounts.Load(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]AccountInfo, 0, len(doc.Accounts))
	for _, acc := range doc.Accounts {
		infos = append(infos, newAccountInfo(acc, doc.ActiveAccountID))
	}
	return &Listing{Accounts: infos, Report: report}, nil
}

// ActiveAccount returns the active account, or nil when none is active.
func (a *App) ActiveAccount(ctx context.Context) (*AccountInfo, error) {
	active, err := a.accounts.Active(ctx)
	if err != nil || active == nil {
		return nil, err
	}
	info := newAccountInfo(*active, active.ID)
	return &info, nil
}

// ResolveAccount finds an account by id, falling back to an exact name match.
func (a *App) ResolveAccount(ctx context.Context, ref string) (AccountInfo, error) {
	doc, _, err := a.accounts.Load(ctx)
	if err != nil {
		return AccountInfo{}, err
	}
	if acc := doc.Account(ref); acc != nil {
		return newAccountInfo(*acc, doc.ActiveAccountID), nil
	}
	for _, acc := range doc.Accounts {
		if acc.Name == ref {
			return newAccountInfo(acc, doc.ActiveAccountID), nil
		}
	}
	return AccountInfo{}, fmt.Errorf("%w: %s", accountstore.ErrAccountNotFound, ref)
}

// AddFromFile imports an existing auth.json as a new account.
func (a *App) AddFromFile(ctx context.Context, path, name string) (AccountInfo, error) {
	account, err := a.switcher.Import(path, name)
	if err != nil {
		return AccountInfo{}, err
	}
	return a.add(ctx, account)
}

// AddAPIKey adds an account holding an API key.
func (a *App) AddAPIKey(ctx context.Context, name, key string) (AccountInfo, error) {
	if credential.IsPlaceholder(key) {
		return AccountInfo{}, fmt.Errorf("API key cannot be empty")
	}
	return a.add(ctx, accountstore.NewAPIKeyAccount(name, key))
}

func (a *App) add(ctx context.Context, account accountstore.Account) (AccountInfo, error) {
	added, err := a.accounts.Add(ctx, account)
	if err != nil {
		return AccountInfo{}, err
	}
	active, err := a.accounts.Active(ctx)
	if err != nil {
		return AccountInfo{}, err
	}
	activeID := ""
	if active != nil {
		activeID = active.ID
	}
	return newAccountInfo(added, activeID), nil
}

// SwitchAccount writes the account into auth.json and makes it active.
// Each step runs only if the previous one succeeded.
func (a *App) SwitchAccount(ctx context.Context, id string) (AccountInfo, error) {
	account, err := a.accounts.Get(ctx, id)
	if err != nil {
		return AccountInfo{}, err
	}

	if a.cfg.Session.SnapshotOnSwitch {
		if err := a.snapshotIfPresent(ctx); err != nil {
			return AccountInfo{}, err
		}
	}

	if err := a.activate(ctx, account); err != nil {
		return AccountInfo{}, err
	}

	updated, err := a.accounts.Get(ctx, id)
	if err != nil {
		return AccountInfo{}, err
	}
	return newAccountInfo(updated, id), nil
}

// activate renders the account into the session file, marks it active and stamps it.
func (a *App) activate(ctx context.Context, account accountstore.Account) error {
	if err := a.switcher.Activate(ctx, account); err != nil {
		return err
	}
	if err := a.accounts.SetActive(ctx, account.ID); err != nil {
		return err
	}
	return a.accounts.Touch(ctx, account.ID)
}

// snapshotIfPresent snapshots auth.json when it holds a login; a missing file is fine.
func (a *App) snapshotIfPresent(ctx context.Context) error {
	present, err := a.switcher.HasActiveLogin()
	if err != nil {
		return fmt.Errorf("inspecting current session before switch: %w", err)
	}
	if !present {
		return nil
	}
	path, err := a.switcher.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshotting current session before switch: %w", err)
	}
	slog.InfoContext(ctx, "snapshotted session before switch", "path", path)
	return nil
}

// RemoveAccount deletes the account and its credentials.
func (a *App) RemoveAccount(ctx context.Context, id string) error {
	return a.accounts.Remove(ctx, id)
}

// RenameAccount changes the account's display name.
func (a *App) RenameAccount(ctx context.Context, id, name string) error {
	return a.accounts.UpdateMetadata(ctx, id, accountstore.Metadata{Name: &name})
}

// ReorderAccounts persists a new display order.
func (a *App) ReorderAccounts(ctx context.Context, ids []string) error {
	return a.accounts.Reorder(ctx, ids)
}

// StartLogin begins an OAuth login that will create an account named name.
func (a *App) StartLogin(ctx context.Context, name string) (login.Info, error) {
	doc, _, err := a.accounts.Load(ctx)
	if err != nil {
		return login.Info{}, err
	}
	for _, acc := range doc.Accounts {
		if acc.Name == name {
			return login.Info{}, fmt.Errorf("%w: %q", accountstore.ErrDuplicateName, name)
		}
	}
	return a.logins.Start(ctx, login.NewAccount(), name)
}

// StartReconnect begins an OAuth login that will refresh an existing account's credentials.
func (a *App) StartReconnect(ctx context.Context, id string) (login.Info, error) {
	account, err := a.accounts.Get(ctx, id)
	if err != nil {
		return login.Info{}, err
	}
	if account.Kind != credential.KindChatGPT {
		return login.Info{}, ErrNotOAuthAccount
	}
	return a.logins.Start(ctx, login.Reconnect(id), account.Name)
}

// CompleteLogin waits for the pending login, stores the new account and switches to it.
func (a *App) CompleteLogin(ctx context.Context) (AccountInfo, error) {
	outcome, err := a.logins.Complete(ctx, login.ModeNewAccount)
	if err != nil {
		return AccountInfo{}, err
	}

	var account accountstore.Account
	switch s := outcome.Secret.(type) {
	case credential.OAuthTokens:
		account = accountstore.NewOAuthAccount(outcome.DisplayName, outcome.Email, outcome.PlanType, s)
	case credential.APIKey:
		account = accountstore.NewAPIKeyAccount(outcome.DisplayName, s.Key)
	default:
		return AccountInfo{}, fmt.Errorf("%w: no credentials delivered", login.ErrUnexpectedResult)
	}

	added, err := a.accounts.Add(ctx, account)
	if err != nil {
		return AccountInfo{}, err
	}
	if err := a.activate(ctx, added); err != nil {
		return AccountInfo{}, err
	}
	return newAccountInfo(added, added.ID), nil
}

// CompleteReconnect waits for the pending reconnect, replaces the account's
// credentials and switches to it.
func (a *App) CompleteReconnect(ctx context.Context) (AccountInfo, error) {
	outcome, err := a.logins.Complete(ctx, login.ModeReconnect)
	if err != nil {
		return AccountInfo{}, err
	}

	tokens, err := login.ReconnectTokens(outcome)
	if err != nil {
		return AccountInfo{}, err
	}

	updated, err := a.accounts.ReplaceOAuthCredentials(ctx, outcome.Mode.AccountID, tokens, outcome.Email, outcome.PlanType)
	if err != nil {
		return AccountInfo{}, err
	}
	if err := a.activate(ctx, updated); err != nil {
		return AccountInfo{}, err
	}
	return newAccountInfo(updated, updated.ID), nil
}

// CancelLogin abandons the pending login, if any.
func (a *App) CancelLogin() {
	a.logins.Cancel()
}

// CurrentSummary describes the current auth.json.
func (a *App) CurrentSummary() session.Summary {
	return a.switcher.Summarize()
}

// Snapshot copies the current auth.json into the snapshots directory.
func (a *App) Snapshot(ctx context.Context) (string, error) {
	path, err := a.switcher.Snapshot()
	if err != nil {
		return "", err
	}
	slog.InfoContext(ctx, "created session snapshot", "path", path)
	return path, nil
}

// WatchSession reports session summaries until ctx is done.
func (a *App) WatchSession(ctx context.Context, fn func(session.Summary)) error {
	return a.switcher.Watch(ctx, fn)
}
