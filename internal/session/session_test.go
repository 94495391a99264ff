package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/0xysh/codex-switcher/internal/accountstore"
	"github.com/0xysh/codex-switcher/internal/credential"
)

var fixedNow = time.Date(2025, 1, 2, 3, 4, 5, 600, time.UTC)

func newTestSwitcher(t *testing.T) *Switcher {
	t.Helper()
	root := t.TempDir()
	s, err := NewSwitcher(Paths{
		CodexHome:    filepath.Join(root, "codex"),
		SnapshotsDir: filepath.Join(root, "config", "snapshots"),
	}, WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("NewSwitcher failed: %v", err)
	}
	return s
}

func writeAuth(t *testing.T, s *Switcher, content string) {
	t.Helper()
	if err := os.MkdirAll(s.paths.CodexHome, 0700); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(s.paths.AuthFile(), []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
}

func idToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return "eyJhbGciOiJub25lIn0." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestActivateAPIKey(t *testing.T) {
	s := newTestSwitcher(t)
	account := accountstore.NewAPIKeyAccount("key", "sk-test")

	if err := s.Activate(context.Background(), account); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	data, err := os.ReadFile(s.paths.AuthFile())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if raw["OPENAI_API_KEY"] != "sk-test" {
		t.Errorf("OPENAI_API_KEY = %v", raw["OPENAI_API_KEY"])
	}
	if _, ok := raw["tokens"]; ok {
		t.Error("API key session should not contain tokens")
	}

	info, err := os.Stat(s.paths.AuthFile())
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("wrong permissions: got %o, want 0600", info.Mode().Perm())
	}
}

func TestActivateOAuth(t *testing.T) {
	s := newTestSwitcher(t)
	tokens := credential.OAuthTokens{IDToken: "i", AccessToken: "a", RefreshToken: "r", AccountID: "acct"}
	account := accountstore.NewOAuthAccount("chatgpt", "", "", tokens)

	if err := s.Activate(context.Background(), account); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	auth, err := s.ReadCurrent()
	if err != nil {
		t.Fatalf("ReadCurrent failed: %v", err)
	}
	if auth.OpenAIAPIKey != nil {
		t.Errorf("OPENAI_API_KEY = %q, want null", *auth.OpenAIAPIKey)
	}
	if auth.Tokens == nil || auth.Tokens.AccessToken != "a" || auth.Tokens.AccountID == nil || *auth.Tokens.AccountID != "acct" {
		t.Errorf("tokens = %+v", auth.Tokens)
	}
	if auth.LastRefresh == nil || !auth.LastRefresh.Equal(fixedNow) {
		t.Errorf("last_refresh = %v, want %v", auth.LastRefresh, fixedNow)
	}
}

func TestActivateRefusesUnusableCredentials(t *testing.T) {
	tests := []struct {
		name   string
		secret credential.Secret
	}{
		{"nil secret", nil},
		{"empty key", credential.APIKey{Key: ""}},
		{"placeholder key", credential.APIKey{Key: credential.Placeholder}},
		{"empty id token", credential.OAuthTokens{IDToken: "", AccessToken: "a", RefreshToken: "r"}},
		{"placeholder refresh token", credential.OAuthTokens{IDToken: "i", AccessToken: "a", RefreshToken: credential.Placeholder}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSwitcher(t)
			account := accountstore.Account{ID: "x", Name: "x", Secret: tt.secret}

			err := s.Activate(context.Background(), account)
			if !errors.Is(err, ErrUnusableCredentials) {
				t.Errorf("Activate() error = %v, want ErrUnusableCredentials", err)
			}
			if _, err := os.Stat(s.paths.AuthFile()); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("session file should not be written, stat error = %v", err)
			}
		})
	}
}

func TestImport(t *testing.T) {
	token := idToken(t, map[string]any{
		"email": "me@example.com",
		"https://api.openai.com/auth": map[string]any{
			"chatgpt_plan_type":  "pro",
			"chatgpt_account_id": "acct-claim",
		},
	})

	tests := []struct {
		name      string
		content   string
		wantKind  credential.Kind
		wantEmail string
		wantPlan  string
		wantErr   error
	}{
		{
			name:     "api key",
			content:  `{"OPENAI_API_KEY": "sk-import"}`,
			wantKind: credential.KindAPIKey,
		},
		{
			name:     "api key wins over tokens",
			content:  `{"OPENAI_API_KEY": "sk-import", "tokens": {"id_token": "i", "access_token": "a", "refresh_token": "r"}}`,
			wantKind: credential.KindAPIKey,
		},
		{
			name:      "tokens with claims",
			content:   `{"OPENAI_API_KEY": null, "tokens": {"id_token": "` + token + `", "access_token": "a", "refresh_token": "r"}}`,
			wantKind:  credential.KindChatGPT,
			wantEmail: "me@example.com",
			wantPlan:  "pro",
		},
		{
			name:     "tokens with malformed id token",
			content:  `{"tokens": {"id_token": "not-a-jwt", "access_token": "a", "refresh_token": "r"}}`,
			wantKind: credential.KindChatGPT,
		},
		{
			name:    "neither",
			content: `{"OPENAI_API_KEY": null}`,
			wantErr: ErrNoCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSwitcher(t)
			path := filepath.Join(t.TempDir(), "auth.json")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatalf("WriteFile failed: %v", err)
			}

			account, err := s.Import(path, "imported")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Import() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Import failed: %v", err)
			}
			if account.Name != "imported" || account.ID != "" {
				t.Errorf("account identity = %q/%q", account.ID, account.Name)
			}
			if account.Kind != tt.wantKind || account.Secret.Kind() != tt.wantKind {
				t.Errorf("kind = %s, want %s", account.Kind, tt.wantKind)
			}
			if account.Email != tt.wantEmail || account.PlanType != tt.wantPlan {
				t.Errorf("metadata = %q/%q, want %q/%q", account.Email, account.PlanType, tt.wantEmail, tt.wantPlan)
			}
		})
	}
}

func TestImportTakesAccountIDFromClaims(t *testing.T) {
	s := newTestSwitcher(t)
	token := idToken(t, map[string]any{
		"https://api.openai.com/auth": map[string]any{"chatgpt_account_id": "acct-claim"},
	})
	path := filepath.Join(t.TempDir(), "auth.json")
	content := `{"tokens": {"id_token": "` + token + `", "access_token": "a", "refresh_token": "r"}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	account, err := s.Import(path, "x")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if got := account.Secret.(credential.OAuthTokens).AccountID; got != "acct-claim" {
		t.Errorf("AccountID = %q, want acct-claim", got)
	}
}

func TestImportRejectsMalformedFile(t *testing.T) {
	s := newTestSwitcher(t)
	path := filepath.Join(t.TempDir(), "auth.json")
	if err := os.WriteFile(path, []byte("{"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if _, err := s.Import(path, "x"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := s.Import(filepath.Join(t.TempDir(), "absent.json"), "x"); err == nil {
		t.Error("expected read error")
	}
}

func TestSummarize(t *testing.T) {
	token := idToken(t, map[string]any{
		"email":                       "me@example.com",
		"https://api.openai.com/auth": map[string]any{"chatgpt_plan_type": "plus"},
	})

	tests := []struct {
		name       string
		content    *string
		wantStatus Status
		wantMode   credential.Kind
		wantEmail  string
	}{
		{name: "missing", wantStatus: StatusMissing},
		{name: "api key", content: ptr(`{"OPENAI_API_KEY": "sk"}`), wantStatus: StatusReady, wantMode: credential.KindAPIKey},
		{
			name:       "tokens",
			content:    ptr(`{"tokens": {"id_token": "` + token + `", "access_token": "a", "refresh_token": "r"}}`),
			wantStatus: StatusReady,
			wantMode:   credential.KindChatGPT,
			wantEmail:  "me@example.com",
		},
		{
			name:       "empty id token",
			content:    ptr(`{"tokens": {"id_token": "", "access_token": "x", "refresh_token": "y"}}`),
			wantStatus: StatusInvalid,
		},
		{name: "blank api key", content: ptr(`{"OPENAI_API_KEY": "  "}`), wantStatus: StatusInvalid},
		{name: "neither", content: ptr(`{}`), wantStatus: StatusInvalid},
		{name: "malformed", content: ptr(`{"tokens": `), wantStatus: StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSwitcher(t)
			if tt.content != nil {
				writeAuth(t, s, *tt.content)
			}

			summary := s.Summarize()
			if summary.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s (message %q)", summary.Status, tt.wantStatus, summary.Message)
			}
			if summary.Mode != tt.wantMode {
				t.Errorf("Mode = %s, want %s", summary.Mode, tt.wantMode)
			}
			if summary.Email != tt.wantEmail {
				t.Errorf("Email = %q, want %q", summary.Email, tt.wantEmail)
			}
			if summary.AuthFilePath != s.paths.AuthFile() || summary.SnapshotsDir != s.paths.SnapshotsDir {
				t.Errorf("paths = %q/%q", summary.AuthFilePath, summary.SnapshotsDir)
			}
			if (tt.content != nil) != (summary.LastModified != nil) {
				t.Errorf("LastModified = %v", summary.LastModified)
			}
		})
	}
}

func ptr(s string) *string { return &s }

func TestSummarizeDoesNotModify(t *testing.T) {
	s := newTestSwitcher(t)
	const content = `{"tokens": {"id_token": "", "access_token": "x", "refresh_token": "y"}}`
	writeAuth(t, s, content)

	_ = s.Summarize()

	data, err := os.ReadFile(s.paths.AuthFile())
	if err != nil || string(data) != content {
		t.Errorf("session file changed: %q, %v", data, err)
	}
	if _, err := os.Stat(s.paths.SnapshotsDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("snapshots directory should not be created, stat error = %v", err)
	}
}

func TestReadCurrentAndHasActiveLogin(t *testing.T) {
	s := newTestSwitcher(t)

	auth, err := s.ReadCurrent()
	if err != nil || auth != nil {
		t.Fatalf("ReadCurrent() on absent file = %+v, %v; want nil, nil", auth, err)
	}
	if ok, err := s.HasActiveLogin(); err != nil || ok {
		t.Errorf("HasActiveLogin() = %v, %v; want false", ok, err)
	}

	writeAuth(t, s, `{"OPENAI_API_KEY": null}`)
	if ok, err := s.HasActiveLogin(); err != nil || ok {
		t.Errorf("HasActiveLogin() = %v, %v; want false", ok, err)
	}

	writeAuth(t, s, `{"OPENAI_API_KEY": "sk"}`)
	if ok, err := s.HasActiveLogin(); err != nil || !ok {
		t.Errorf("HasActiveLogin() = %v, %v; want true", ok, err)
	}

	writeAuth(t, s, `not json`)
	if _, err := s.ReadCurrent(); err == nil {
		t.Error("ReadCurrent() should fail on malformed file")
	}
	if _, err := s.HasActiveLogin(); err == nil {
		t.Error("HasActiveLogin() should fail on malformed file")
	}
}

func TestSnapshotName(t *testing.T) {
	at := time.Date(2024, 12, 31, 23, 59, 58, 999, time.FixedZone("X", 3600))
	tests := []struct {
		n    int
		want string
	}{
		{0, "auth-snapshot-20241231T225958Z.json"},
		{1, "auth-snapshot-20241231T225958Z-1.json"},
		{12, "auth-snapshot-20241231T225958Z-12.json"},
	}
	for _, tt := range tests {
		if got := snapshotName(at, tt.n); got != tt.want {
			t.Errorf("snapshotName(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestSnapshotCollisionsWithinOneSecond(t *testing.T) {
	s := newTestSwitcher(t)
	const content = `{"OPENAI_API_KEY": "sk-snap"}`
	writeAuth(t, s, content)

	var got []string
	for range 3 {
		path, err := s.Snapshot()
		if err != nil {
			t.Fatalf("Snapshot failed: %v", err)
		}
		got = append(got, filepath.Base(path))
	}

	want := []string{
		"auth-snapshot-20250102T030405Z.json",
		"auth-snapshot-20250102T030405Z-1.json",
		"auth-snapshot-20250102T030405Z-2.json",
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("snapshot %d = %q, want %q", i, got[i], want[i])
		}
	}

	data, err := os.ReadFile(filepath.Join(s.paths.SnapshotsDir, want[0]))
	if err != nil || string(data) != content {
		t.Errorf("snapshot content = %q, %v", data, err)
	}

	info, err := os.Stat(filepath.Join(s.paths.SnapshotsDir, want[2]))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("wrong file permissions: got %o, want 0600", info.Mode().Perm())
	}
	dirInfo, err := os.Stat(s.paths.SnapshotsDir)
	if err != nil {
		t.Fatalf("Stat dir failed: %v", err)
	}
	if dirInfo.Mode().Perm() != 0700 {
		t.Errorf("wrong dir permissions: got %o, want 0700", dirInfo.Mode().Perm())
	}
}

func TestSnapshotRequiresParseableSession(t *testing.T) {
	s := newTestSwitcher(t)
	if _, err := s.Snapshot(); err == nil {
		t.Error("Snapshot() should fail when the session file is absent")
	}

	writeAuth(t, s, `garbage`)
	if _, err := s.Snapshot(); err == nil {
		t.Error("Snapshot() should fail when the session file does not parse")
	}

	// A parseable file without credentials is still snapshot-able.
	writeAuth(t, s, `{}`)
	if _, err := s.Snapshot(); err != nil {
		t.Errorf("Snapshot() failed: %v", err)
	}
}

func TestWatchReportsChanges(t *testing.T) {
	s := newTestSwitcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	summaries := make(chan Summary, 8)
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, func(summary Summary) { summaries <- summary })
	}()

	select {
	case first := <-summaries:
		if first.Status != StatusMissing {
			t.Errorf("initial status = %s, want missing", first.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no initial summary")
	}

	if err := s.Activate(ctx, accountstore.NewAPIKeyAccount("k", "sk-watch")); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	select {
	case changed := <-summaries:
		if changed.Status != StatusReady || changed.Mode != credential.KindAPIKey {
			t.Errorf("summary after activate = %+v", changed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no summary after session file changed")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
}

func TestNewSwitcherRequiresPaths(t *testing.T) {
	if _, err := NewSwitcher(Paths{SnapshotsDir: "x"}); err == nil || !strings.Contains(err.Error(), "codex home") {
		t.Errorf("NewSwitcher() error = %v", err)
	}
	if _, err := NewSwitcher(Paths{CodexHome: "x"}); err == nil {
		t.Error("expected error for missing snapshots directory")
	}
}

func TestDefaultCodexHome(t *testing.T) {
	t.Setenv(CodexHomeEnv, "/custom/codex")
	got, err := DefaultCodexHome()
	if err != nil || got != "/custom/codex" {
		t.Errorf("DefaultCodexHome() = %q, %v", got, err)
	}

	t.Setenv(CodexHomeEnv, "")
	t.Setenv("HOME", "/home/tester")
	got, err = DefaultCodexHome()
	if err != nil || got != filepath.Join("/home/tester", ".codex") {
		t.Errorf("DefaultCodexHome() = %q, %v", got, err)
	}
}
