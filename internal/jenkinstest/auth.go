package jenkinstest

import (
	"crypto/subtle"
	"net/http"
)

// authMiddleware rejects requests without the expected basic credentials
type authMiddleware struct {
	username string
	password string
}

func newAuthMiddleware(username, password string) *authMiddleware {
	return &authMiddleware{
		username: username,
		password: password,
	}
}

// validate returns true if the credentials match
func (am *authMiddleware) validate(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(am.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(am.password)) == 1
	return userOK && passOK
}

// Middleware returns an HTTP handler that validates basic credentials
func (am *authMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if am.username == "" {
			next.ServeHTTP(w, r)
			return
		}

		username, password, ok := r.BasicAuth()
		if !ok || !am.validate(username, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Jenkins"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
