package oauthlistener

import (
	"golang.org/x/oauth2"
)

const (
	// ClientID is the public OAuth2 client identifier of the Codex CLI.
	// This is a public client (no client secret) using PKCE for security.
	ClientID = "app_EMoamEEZ73f0CkXaXp7hrann"

	// DefaultPort is the callback port registered for ClientID.
	DefaultPort = 1455

	callbackPath = "/auth/callback"
)

// Endpoint defines the OAuth2 endpoints for ChatGPT sign-in.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://auth.openai.com/oauth/authorize",
	TokenURL:  "https://auth.openai.com/oauth/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// scopes defines the OAuth scopes requested by the Codex CLI
var scopes = []string{"openid", "profile", "email", "offline_access"}

// authURLParams are the extra authorize parameters the Codex CLI sends.
var authURLParams = []oauth2.AuthCodeOption{
	oauth2.SetAuthURLParam("id_token_add_organizations", "true"),
	oauth2.SetAuthURLParam("codex_cli_simplified_flow", "true"),
	oauth2.SetAuthURLParam("originator", "codex_cli_rs"),
}
