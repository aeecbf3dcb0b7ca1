package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/docqa-go/internal/logging"
)

// apiKeyHeader is accepted as an alternative to a Bearer token so simple
// upload forms and scripts can authenticate without building an
// Authorization header.
const apiKeyHeader = "X-API-Key"

// authMiddleware enforces the configured API key on document and question
// routes. If apiKey is empty the middleware is a no-op.
//
// A request authenticates with either of:
//
//	Authorization: Bearer <apiKey>
//	X-API-Key: <apiKey>
//
// Failures receive 401 with a JSON error body and a WWW-Authenticate
// challenge. Keys are compared in constant time and never logged.
func authMiddleware(apiKey string, next http.Handler) http.Handler {
	if apiKey == "" {
		return next
	}
	want := []byte(apiKey)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())

		token := requestToken(r)
		if token == "" {
			log.Warn("auth: missing credentials", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="docqa"`)
			writeJSONError(r.Context(), w, "authorization required", http.StatusUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			log.Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="docqa" error="invalid_token"`)
			writeJSONError(r.Context(), w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestToken returns the Bearer token, or the X-API-Key header when no
// Authorization header is present.
func requestToken(r *http.Request) string {
	if r.Header.Get("Authorization") != "" {
		return bearerToken(r)
	}
	return strings.TrimSpace(r.Header.Get(apiKeyHeader))
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns an empty string if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
