// Package credential defines the secret payloads an account can hold.
//
// A Secret is one of two closed variants:
//   - APIKey: a single OpenAI API key
//   - OAuthTokens: the id/access/refresh token bundle from a ChatGPT login
//
// Redact, Usable and the Envelope codec switch over both variants; adding a kind
// means adding a case to each of them.
package credential
