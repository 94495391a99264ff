package credential

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the shape of an account's secret.
type Kind string

const (
	KindAPIKey  Kind = "api_key"
	KindChatGPT Kind = "chatgpt"
)

// Placeholder replaces every sensitive value written to the account index.
// The real value lives only in the secret store.
const Placeholder = "__stored_in_keychain__"

// IsPlaceholder reports whether v carries no real secret.
func IsPlaceholder(v string) bool {
	return v == "" || v == Placeholder
}

// Secret is the real credential payload of an account.
// The set of implementations is closed: APIKey and OAuthTokens.
type Secret interface {
	Kind() Kind
	secret()
}

// APIKey is a plain OpenAI API key.
type APIKey struct {
	Key string
}

// OAuthTokens is the token bundle obtained from a ChatGPT OAuth login.
type OAuthTokens struct {
	IDToken      string
	AccessToken  string
	RefreshToken string
	// AccountID is the provider-side account identifier, not the local account id.
	AccountID string
}

// Compile-time checks for the closed variant set
var (
	_ Secret = APIKey{}
	_ Secret = OAuthTokens{}
)

func (APIKey) Kind() Kind      { return KindAPIKey }
func (OAuthTokens) Kind() Kind { return KindChatGPT }

func (APIKey) secret()      {}
func (OAuthTokens) secret() {}

// Redact returns a copy of s with every sensitive field replaced by Placeholder.
// Non-sensitive fields (the provider account id) are kept.
func Redact(s Secret) Secret {
	switch v := s.(type) {
	case APIKey:
		return APIKey{Key: Placeholder}
	case OAuthTokens:
		return OAuthTokens{
			IDToken:      Placeholder,
			AccessToken:  Placeholder,
			RefreshToken: Placeholder,
			AccountID:    v.AccountID,
		}
	default:
		return nil
	}
}

// Usable reports whether every field required by the secret's kind holds a real value.
func Usable(s Secret) bool {
	switch v := s.(type) {
	case APIKey:
		return !IsPlaceholder(v.Key)
	case OAuthTokens:
		return !IsPlaceholder(v.IDToken) &&
			!IsPlaceholder(v.AccessToken) &&
			!IsPlaceholder(v.RefreshToken)
	default:
		return false
	}
}

// Equal reports whether a and b are the same variant with identical values.
func Equal(a, b Secret) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a == b
}

// envelope is the wire form of a Secret, tagged by "type".
type envelope struct {
	Type         Kind   `json:"type"`
	Key          string `json:"key,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	AccountID    string `json:"account_id,omitempty"`
}

// Envelope wraps a Secret for JSON encoding.
// The zero value encodes as null.
type Envelope struct {
	Secret Secret
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	switch v := e.Secret.(type) {
	case nil:
		return []byte("null"), nil
	case APIKey:
		return json.Marshal(envelope{Type: KindAPIKey, Key: v.Key})
	case OAuthTokens:
		return json.Marshal(envelope{
			Type:         KindChatGPT,
			IDToken:      v.IDToken,
			AccessToken:  v.AccessToken,
			RefreshToken: v.RefreshToken,
			AccountID:    v.AccountID,
		})
	default:
		return nil, fmt.Errorf("unsupported secret type %T", v)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		e.Secret = nil
		return nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	switch env.Type {
	case KindAPIKey:
		e.Secret = APIKey{Key: env.Key}
	case KindChatGPT:
		e.Secret = OAuthTokens{
			IDToken:      env.IDToken,
			AccessToken:  env.AccessToken,
			RefreshToken: env.RefreshToken,
			AccountID:    env.AccountID,
		}
	default:
		return fmt.Errorf("unknown secret type %q", env.Type)
	}
	return nil
}
