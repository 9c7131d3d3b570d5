package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// requireAuth gates the transaction (write) endpoints. With no admin
// secret configured writes are disabled outright, so a read-only
// deployment needs no token handling at all. Otherwise the request
// must carry an HS256 bearer token signed with the secret.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminSecret == "" {
			writeError(w, http.StatusForbidden, "write operations are disabled: no admin secret configured")
			return
		}

		token, err := bearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		_, err = jwt.Parse(token, func(t *jwt.Token) (any, error) {
			return []byte(s.cfg.AdminSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r)
	}
}

func bearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("Authorization header must use the Bearer scheme")
	}
	return strings.TrimSpace(parts[1]), nil
}
