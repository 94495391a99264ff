package oauthlistener

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
)

// recoverInto turns a handler panic into a 500 for the browser and hands the
// panic to onPanic, so the waiting flow fails instead of running into its timeout.
func recoverInto(onPanic func(error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					onPanic(fmt.Errorf("callback handler panicked: %v", v))
					http.Error(w, "Login failed. Return to the terminal for details.", http.StatusInternalServerError)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// noStore keeps callback pages out of caches and referrers; their URL carries the authorization code.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// requestLogging logs each callback request with method, path, status and duration.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		// Headers and bodies may carry tokens
		LogRequestHeaders:  []string{},
		LogResponseHeaders: []string{},
		LogRequestBody:     nil,
		LogResponseBody:    nil,

		RecoverPanics: false,
	})
}

// chain wraps h so the first middleware is the outermost.
func chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
