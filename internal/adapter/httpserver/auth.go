package httpserver

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards the API with the static operator token. The comparison
// is constant time; header parsing is case-insensitive on the scheme.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if authorized(r.Header.Get("Authorization"), token) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="smurfguard"`)
			writeJSON(w, http.StatusUnauthorized, errorEnvelope{Error: apiError{
				Code:    "UNAUTHENTICATED",
				Message: "missing or invalid bearer token",
			}})
		})
	}
}

func authorized(header, token string) bool {
	const scheme = "Bearer "
	if len(header) <= len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return false
	}
	presented := strings.TrimSpace(header[len(scheme):])
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}
