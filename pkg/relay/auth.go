package relay

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

type APIConfig struct {
	Username string
	Password string
	Token    string
}

func (a APIConfig) authorized(r *http.Request) bool {
	switch {
	case a.Password != "":
		username, password, ok := r.BasicAuth()
		return ok && equal(username, a.Username) && equal(password, a.Password)

	case a.Token != "":
		scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
		return ok && scheme == "Bearer" && equal(token, a.Token)

	default:
		return true
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func basicAuth(cfg APIConfig, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !cfg.authorized(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	}
}
