package httpapi

import (
	"crypto/subtle"
	"net/http"
)

// RequireAuth rejects requests whose Authorization header does not equal the
// shared secret. The body is never read for rejected requests.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r.Header.Get("Authorization")) {
			authFailures.Inc()
			writeJSONError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func authorized(got string) bool {
	if authKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(authKey)) == 1
}
