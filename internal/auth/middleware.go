package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// RequireToken returns middleware that checks the request carries the expected API token,
// either as a bearer token or, for WebSocket upgrades, as the "token" query parameter.
// An empty expected token disables the check.
func RequireToken(expected string, logger zerolog.Logger) func(http.Handler) http.Handler {
	logger = logger.With().Str("component", "auth").Logger()

	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				logger.Debug().Str("path", r.URL.Path).Msg("No API token present")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if !ValidateToken(token, expected) {
				logger.Warn().Str("path", r.URL.Path).Msg("Invalid API token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// TokenFromRequest extracts the token from "Authorization: Bearer <token>" (the scheme is
// case-insensitive) or from the "token" query parameter, since browsers cannot set headers
// on WebSocket connections.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		fields := strings.Fields(authHeader)
		if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
			return ""
		}
		return strings.TrimSpace(strings.Join(fields[1:], " "))
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// ValidateToken compares token against expected in constant time.
func ValidateToken(token, expected string) bool {
	if token == "" || expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}
