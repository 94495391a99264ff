// Package secretstore keeps each account's credential in OS-native secret storage.
//
// Supports two backends with different security and deployment tradeoffs:
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, Secret Service)
//   - File: one 0600 file per account for headless machines without a secret service
//
// Entries are keyed by account id under a fixed namespace so they never collide
// with unrelated applications. A missing entry is reported as a nil Secret, not as
// an error; Delete is idempotent.
package secretstore
