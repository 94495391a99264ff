package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/0xysh/codex-switcher/internal/credential"
)

var (
	// ErrUnusableCredentials is returned when an account's secret is missing or redacted.
	ErrUnusableCredentials = errors.New("account has no usable credentials")

	// ErrNoCredentials is returned when a session file holds neither an API key nor tokens.
	ErrNoCredentials = errors.New("auth.json contains neither API key nor tokens")
)

// AuthFile is the Codex CLI session file (auth.json). Field names must stay
// byte-compatible with what the Codex CLI reads and writes.
type AuthFile struct {
	OpenAIAPIKey *string    `json:"OPENAI_API_KEY"`
	Tokens       *TokenData `json:"tokens,omitempty"`
	LastRefresh  *time.Time `json:"last_refresh,omitempty"`
}

// TokenData is the OAuth token bundle inside auth.json.
type TokenData struct {
	IDToken      string  `json:"id_token"`
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	AccountID    *string `json:"account_id,omitempty"`
}

// APIKey returns the API key, or "" when none is set.
func (a *AuthFile) APIKey() string {
	if a.OpenAIAPIKey == nil {
		return ""
	}
	return *a.OpenAIAPIKey
}

// HasCredentials reports whether either credential field is populated.
func (a *AuthFile) HasCredentials() bool {
	return a.APIKey() != "" || a.Tokens != nil
}

// Secret converts the file into a credential. The API key takes precedence
// when both fields are present.
func (a *AuthFile) Secret() (credential.Secret, error) {
	if key := a.APIKey(); key != "" {
		return credential.APIKey{Key: key}, nil
	}
	if a.Tokens != nil {
		tokens := credential.OAuthTokens{
			IDToken:      a.Tokens.IDToken,
			AccessToken:  a.Tokens.AccessToken,
			RefreshToken: a.Tokens.RefreshToken,
		}
		if a.Tokens.AccountID != nil {
			tokens.AccountID = *a.Tokens.AccountID
		}
		return tokens, nil
	}
	return nil, ErrNoCredentials
}

// renderAuthFile builds the session file for a secret. OAuth sessions are
// stamped with refreshedAt.
func renderAuthFile(secret credential.Secret, refreshedAt time.Time) (*AuthFile, error) {
	switch s := secret.(type) {
	case credential.APIKey:
		key := s.Key
		return &AuthFile{OpenAIAPIKey: &key}, nil
	case credential.OAuthTokens:
		tokens := &TokenData{
			IDToken:      s.IDToken,
			AccessToken:  s.AccessToken,
			RefreshToken: s.RefreshToken,
		}
		if s.AccountID != "" {
			accountID := s.AccountID
			tokens.AccountID = &accountID
		}
		refreshed := refreshedAt.UTC()
		return &AuthFile{Tokens: tokens, LastRefresh: &refreshed}, nil
	default:
		return nil, fmt.Errorf("unsupported secret type %T", secret)
	}
}

func parseAuthFile(data []byte) (*AuthFile, error) {
	var auth AuthFile
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, err
	}
	return &auth, nil
}

// blank reports whether v is empty or the index placeholder.
func blank(v string) bool {
	return credential.IsPlaceholder(strings.TrimSpace(v))
}
