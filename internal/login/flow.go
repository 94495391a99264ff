package login

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/0xysh/codex-switcher/internal/credential"
)

var (
	// ErrNoPendingFlow is returned by Complete when no login is in progress.
	ErrNoPendingFlow = errors.New("no pending login flow")

	// ErrModeMismatch is returned when the pending flow is not of the expected kind.
	ErrModeMismatch = errors.New("pending login flow has a different mode")

	// ErrUnexpectedResult is returned when a reconnect flow delivers something other than OAuth tokens.
	ErrUnexpectedResult = errors.New("unexpected login result")
)

// ModeKind distinguishes a login that creates an account from one that refreshes an existing account.
type ModeKind string

const (
	ModeNewAccount ModeKind = "new_account"
	ModeReconnect  ModeKind = "reconnect"
)

// Mode is what a pending flow will do on completion. AccountID is set for reconnects only.
type Mode struct {
	Kind      ModeKind
	AccountID string
}

// NewAccount returns the mode for a login that creates an account.
func NewAccount() Mode {
	return Mode{Kind: ModeNewAccount}
}

// Reconnect returns the mode for a login that replaces accountID's credentials.
func Reconnect(accountID string) Mode {
	return Mode{Kind: ModeReconnect, AccountID: accountID}
}

func (m Mode) String() string {
	if m.Kind == ModeReconnect {
		return fmt.Sprintf("%s(%s)", m.Kind, m.AccountID)
	}
	return string(m.Kind)
}

// Info is what the user needs to finish the flow in a browser.
type Info struct {
	AuthURL     string `json:"auth_url" yaml:"auth_url"`
	CallbackURL string `json:"callback_url" yaml:"callback_url"`
}

// Outcome is a successful login.
type Outcome struct {
	// Mode is filled in by the Coordinator on completion.
	Mode Mode

	DisplayName string
	Email       string
	PlanType    string
	Secret      credential.Secret
}

// Result is the single value a Listener delivers: an Outcome or an error.
type Result struct {
	Outcome Outcome
	Err     error
}

// CancelFlag is a one-way cancellation signal shared between the coordinator
// and a listener. The listener observes it and tears down its resources.
type CancelFlag struct {
	once sync.Once
	done chan struct{}
}

// NewCancelFlag returns an unset flag.
func NewCancelFlag() *CancelFlag {
	return &CancelFlag{done: make(chan struct{})}
}

// Cancel sets the flag. Calling it more than once is safe.
func (f *CancelFlag) Cancel() {
	f.once.Do(func() { close(f.done) })
}

// Cancelled reports whether the flag is set.
func (f *CancelFlag) Cancelled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done is closed when the flag is set.
func (f *CancelFlag) Done() <-chan struct{} {
	return f.done
}

// Listener runs the external part of an OAuth flow.
//
// Begin starts a flow and returns immediately. The listener must write at
// most one Result to the returned channel, which must have capacity for it,
// and must stop listening once the flag is set.
type Listener interface {
	Begin(ctx context.Context, displayName string) (Info, <-chan Result, *CancelFlag, error)
}

// ReconnectTokens extracts the OAuth tokens from a reconnect outcome. Any
// other credential shape is a contract violation.
func ReconnectTokens(outcome Outcome) (credential.OAuthTokens, error) {
	switch s := outcome.Secret.(type) {
	case credential.OAuthTokens:
		return s, nil
	case nil:
		return credential.OAuthTokens{}, fmt.Errorf("%w: no credentials delivered", ErrUnexpectedResult)
	default:
		return credential.OAuthTokens{}, fmt.Errorf("%w: reconnect delivered %s credentials", ErrUnexpectedResult, s.Kind())
	}
}
