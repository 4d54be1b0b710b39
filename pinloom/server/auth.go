package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/armon/go-radix"

	"github.com/ZanzyTHEbar/pinloom/pinloom/config"
)

type userKey struct{}

// UserFromContext returns the authenticated user id, if any.
func UserFromContext(ctx context.Context) (string, bool) {
	user, ok := ctx.Value(userKey{}).(string)
	return user, ok && user != ""
}

// WithUser stores an authenticated user id in ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// Authenticator resolves bearer tokens to users and decides which paths are
// reachable without one.
type Authenticator struct {
	tokens []config.TokenConfig
	public *radix.Tree // value reports whether the key is a prefix entry
}

// NewAuthenticator builds the token table and the public path tree. A public
// path ending in "*" matches every path starting with the rest.
func NewAuthenticator(cfg config.AuthConfig) *Authenticator {
	a := &Authenticator{public: radix.New()}
	for _, t := range cfg.Tokens {
		if t.Token != "" && t.UserID != "" {
			a.tokens = append(a.tokens, t)
		}
	}
	for _, p := range cfg.PublicPaths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			a.public.Insert(prefix, true)
			continue
		}
		if _, exists := a.public.Get(p); !exists {
			a.public.Insert(p, false)
		}
	}
	return a
}

// IsPublic reports whether path bypasses the authentication gate.
func (a *Authenticator) IsPublic(path string) bool {
	if v, ok := a.public.Get(path); ok && !v.(bool) {
		return true
	}

	public := false
	a.public.WalkPath(path, func(_ string, v any) bool {
		if v.(bool) {
			public = true
			return true
		}
		return false
	})
	return public
}

// Authenticate maps a bearer token to its user id.
func (a *Authenticator) Authenticate(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	candidate := []byte(strings.TrimSpace(header[7:]))
	if len(candidate) == 0 {
		return "", false
	}

	for _, t := range a.tokens {
		if subtle.ConstantTimeCompare(candidate, []byte(t.Token)) == 1 {
			return t.UserID, true
		}
	}
	return "", false
}

// Middleware attaches the user to the request context and rejects
// unauthenticated requests to non-public paths.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userID, ok := a.Authenticate(r); ok {
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
			return
		}
		if a.IsPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	})
}
