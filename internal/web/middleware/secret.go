// Package middleware provides HTTP middleware for the face-index server.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/kozaktomas/face-index/internal/constants"
)

// RequireSecretToken rejects webhook deliveries whose secret header does not
// match. An empty secret disables the check.
func RequireSecretToken(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(constants.TelegramSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
