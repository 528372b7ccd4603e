package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type ctxKey int

const userKey ctxKey = iota

// RequireUser reads the caller identity set by the fronting auth layer from
// the X-Twin-User header and stores it in the request context. Requests
// without it are rejected before any handler runs.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := strings.TrimSpace(r.Header.Get("X-Twin-User"))
		if user == "" {
			httpError(w, http.StatusUnauthorized, "authentication_error", "missing X-Twin-User header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func userFrom(ctx context.Context) string {
	user, _ := ctx.Value(userKey).(string)
	return user
}
