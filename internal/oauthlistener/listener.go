package oauthlistener

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/0xysh/codex-switcher/internal/credential"
	"github.com/0xysh/codex-switcher/internal/login"
)

const (
	// DefaultTimeout bounds how long a flow waits for the browser callback.
	DefaultTimeout = 5 * time.Minute

	shutdownTimeout = 5 * time.Second
)

// Option configures a Listener.
type Option func(*Listener)

// WithEndpoint overrides the OAuth2 endpoints.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(l *Listener) {
		l.endpoint = endpoint
	}
}

// WithHTTPClient sets the client used for the token exchange.
func WithHTTPClient(client *http.Client) Option {
	return func(l *Listener) {
		l.httpClient = client
	}
}

// WithTimeout sets how long a flow waits for its callback.
func WithTimeout(timeout time.Duration) Option {
	return func(l *Listener) {
		l.timeout = timeout
	}
}

// Listener runs the ChatGPT OAuth authorization-code flow with PKCE against a
// local callback server. Each Begin binds its own server, torn down when the
// flow completes, times out, or is cancelled.
type Listener struct {
	port       int
	endpoint   oauth2.Endpoint
	httpClient *http.Client
	timeout    time.Duration
}

// Compile-time check that Listener implements login.Listener
var _ login.Listener = (*Listener)(nil)

// New creates a Listener binding 127.0.0.1 on port. Port 0 picks a free port.
func New(port int, opts ...Option) *Listener {
	l := &Listener{
		port:     port,
		endpoint: Endpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Begin binds the callback server and returns the URL the user must open.
// Bind errors (port in use) are returned immediately.
func (l *Listener) Begin(ctx context.Context, displayName string) (login.Info, <-chan login.Result, *login.CancelFlag, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", l.port))
	if err != nil {
		return login.Info{}, nil, nil, fmt.Errorf("failed to listen on port %d: %w", l.port, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	f := &flow{
		displayName: displayName,
		state:       rand.Text(),
		verifier:    oauth2.GenerateVerifier(),
		config: &oauth2.Config{
			ClientID:     ClientID,
			ClientSecret: "", // Empty for PKCE flow (public client)
			Endpoint:     l.endpoint,
			RedirectURL:  fmt.Sprintf("http://localhost:%d%s", port, callbackPath),
			Scopes:       scopes,
		},
		results:  make(chan login.Result, 1),
		cancel:   login.NewCancelFlag(),
		finished: make(chan struct{}),
	}

	opts := append([]oauth2.AuthCodeOption{oauth2.S256ChallengeOption(f.verifier)}, authURLParams...)
	info := login.Info{
		AuthURL:     f.config.AuthCodeURL(f.state, opts...),
		CallbackURL: f.config.RedirectURL,
	}

	// The flow outlives the caller's request; only the timeout ends it.
	flowCtx, stop := context.WithTimeoutCause(context.WithoutCancel(ctx), l.timeout, errors.New("timed out waiting for the browser callback"))
	flowCtx = context.WithValue(flowCtx, oauth2.HTTPClient, l.httpClient)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+callbackPath, f.handleCallback)

	server := &http.Server{
		Handler: chain(mux,
			requestLogging(slog.Default()),
			recoverInto(func(err error) { f.deliver(login.Result{Err: err}) }),
			noStore,
		),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return flowCtx
		},
	}

	g, gctx := errgroup.WithContext(flowCtx)

	g.Go(func() error {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("callback server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-f.finished:
		case <-f.cancel.Done():
			slog.InfoContext(ctx, "login cancelled, closing callback server", "port", port)
		case <-gctx.Done():
			f.deliver(login.Result{Err: fmt.Errorf("login did not complete: %w", context.Cause(gctx))})
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			// Graceful shutdown failed - force close
			_ = server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	go func() {
		defer stop()
		if err := g.Wait(); err != nil {
			slog.WarnContext(ctx, "callback server stopped with error", "error", err)
		}
	}()

	slog.InfoContext(ctx, "waiting for login callback", "callback_url", info.CallbackURL)
	return info, f.results, f.cancel, nil
}

// flow is one in-progress authorization.
type flow struct {
	displayName string
	state       string
	verifier    string
	config      *oauth2.Config

	results  chan login.Result
	cancel   *login.CancelFlag
	once     sync.Once
	finished chan struct{}
}

// deliver sends the flow's only result, unless the flow was cancelled.
func (f *flow) deliver(r login.Result) {
	f.once.Do(func() {
		if !f.cancel.Cancelled() {
			f.results <- r
		}
		close(f.finished)
	})
}

func (f *flow) handleCallback(w http.ResponseWriter, r *http.Request) {
	if f.cancel.Cancelled() {
		http.Error(w, "Login was cancelled", http.StatusGone)
		return
	}

	query := r.URL.Query()
	if query.Get("state") != f.state {
		// Not ours: keep waiting for the real callback.
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	if errCode := query.Get("error"); errCode != "" {
		err := fmt.Errorf("authorization denied: %s %s", errCode, query.Get("error_description"))
		f.deliver(login.Result{Err: err})
		http.Error(w, "Login failed. You can close this window.", http.StatusBadRequest)
		return
	}

	code := query.Get("code")
	if code == "" {
		f.deliver(login.Result{Err: fmt.Errorf("callback is missing the authorization code")})
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	outcome, err := f.exchange(r.Context(), code)
	if err != nil {
		f.deliver(login.Result{Err: err})
		http.Error(w, "Token exchange failed. You can close this window.", http.StatusBadGateway)
		return
	}

	f.deliver(login.Result{Outcome: outcome})
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "Signed in. You can close this window and return to codexswitch.")
}

// exchange trades the authorization code for tokens. ctx carries the HTTP client.
func (f *flow) exchange(ctx context.Context, code string) (login.Outcome, error) {
	token, err := f.config.Exchange(ctx, code, oauth2.VerifierOption(f.verifier))
	if err != nil {
		return login.Outcome{}, fmt.Errorf("token exchange failed: %w", err)
	}

	idToken, _ := token.Extra("id_token").(string)
	tokens := credential.OAuthTokens{
		IDToken:      idToken,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if !credential.Usable(tokens) {
		return login.Outcome{}, fmt.Errorf("token response is missing id, access or refresh token")
	}

	claims := credential.ParseIDTokenClaims(idToken)
	tokens.AccountID = claims.AccountID

	return login.Outcome{
		DisplayName: f.displayName,
		Email:       claims.Email,
		PlanType:    claims.PlanType,
		Secret:      tokens,
	}, nil
}
