package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"pkt.systems/webtabs/internal/logx"
)

const (
	tokenCookie     = "webtabs_token"
	tokenQueryParam = "token"
)

var (
	errMissingToken = errors.New("missing token")
	errInvalidToken = errors.New("invalid token")
)

// requestToken extracts a bearer token from the Authorization header, the
// token query parameter (EventSource cannot set headers) or the cookie.
func requestToken(r *http.Request) string {
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); auth != "" {
		if scheme, value, ok := strings.Cut(auth, " "); ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(value)
		}
	}
	if value := strings.TrimSpace(r.URL.Query().Get(tokenQueryParam)); value != "" {
		return value
	}
	if cookie, err := r.Cookie(tokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func tokenMatches(expected, got string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// requireToken guards next when a token is configured.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next(w, r)
			return
		}
		log := logx.Ctx(r.Context()).With("remote", clientIP(r))
		token := requestToken(r)
		if token == "" {
			log.Warn("http token missing")
			writeError(w, http.StatusUnauthorized, errMissingToken)
			return
		}
		if !tokenMatches(s.cfg.Token, token) {
			log.Warn("http token invalid")
			writeError(w, http.StatusUnauthorized, errInvalidToken)
			return
		}
		next(w, r)
	}
}
