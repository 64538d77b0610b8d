package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// SchedulerSecretHeader carries the shared secret on run triggers.
const SchedulerSecretHeader = "X-Winback-Secret"

// SchedulerSecret guards internal trigger endpoints with a shared secret.
func SchedulerSecret(secret string) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				http.Error(w, "scheduler auth disabled", http.StatusUnauthorized)
				return
			}
			got := []byte(strings.TrimSpace(r.Header.Get(SchedulerSecretHeader)))
			if subtle.ConstantTimeCompare(got, expected) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
