package http

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// bearerToken pulls the token out of the Authorization header; empty when
// the header is absent or not a bearer scheme.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return token
}

func tokenMatches(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// RequireToken rejects requests that do not carry the admin token.
func RequireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tokenMatches(bearerToken(r), token) {
				writeDetail(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CheckToken validates the admin token only when an Authorization header is
// present; unauthenticated requests pass through. Kiosk clients enroll
// without credentials, but a wrong token is still a client error.
func CheckToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" && !tokenMatches(bearerToken(r), token) {
				writeDetail(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
