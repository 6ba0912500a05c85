// Package authmw provides HTTP middleware for bearer token authentication
// of the alert API.
package authmw

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const (
	bearerPrefix = "Bearer "
	challenge    = `Bearer realm="uaso"`
)

// Reasons passed to OnReject.
const (
	ReasonMissing = "missing"
	ReasonInvalid = "invalid"
)

// Options tunes BearerToken.
type Options struct {
	// OnReject is called once per rejected request with ReasonMissing or
	// ReasonInvalid. Optional.
	OnReject func(reason string)
}

// BearerToken returns middleware that validates the Authorization header
// contains a Bearer token matching the expected value. Comparison is
// constant-time. Rejections answer 401 with a WWW-Authenticate challenge.
func BearerToken(token string, opts Options) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")

			if !strings.HasPrefix(auth, bearerPrefix) {
				reject(w, opts, ReasonMissing, "missing or malformed authorization header")
				return
			}

			got := []byte(auth[len(bearerPrefix):])
			if subtle.ConstantTimeCompare(got, expected) != 1 {
				reject(w, opts, ReasonInvalid, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, opts Options, reason, msg string) {
	if opts.OnReject != nil {
		opts.OnReject(reason)
	}
	w.Header().Set("WWW-Authenticate", challenge)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
