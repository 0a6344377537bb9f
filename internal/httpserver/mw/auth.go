package mw

import (
	"context"
	"net/http"
	"strings"

	"github.com/overlaylabs/copresence/internal/auth"
	"github.com/overlaylabs/copresence/internal/domain"
	"github.com/overlaylabs/copresence/internal/logger"
)

type ctxKey int

const userKey ctxKey = iota

// Auth rejects requests without a valid bearer token. The websocket route
// also accepts the token as a query parameter because browser websocket
// clients cannot set headers.
func Auth(verifier *auth.Verifier, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				token = r.URL.Query().Get("token")
			}

			user, err := verifier.Verify(token)
			if err != nil {
				log.Debug("rejected unauthenticated request",
					logger.String("path", r.URL.Path),
					logger.Error(err))
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFrom returns the authenticated user stored by Auth.
func UserFrom(ctx context.Context) (domain.UserInfo, bool) {
	u, ok := ctx.Value(userKey).(domain.UserInfo)
	return u, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
