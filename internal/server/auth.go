// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
	"github.com/sigil-dev/securegraph/pkg/visibility"
)

// AuthenticatedUser is the principal a request runs as. Its
// Authorizations decide which cells the request can read.
type AuthenticatedUser struct {
	Name           string
	Authorizations visibility.Authorizations
	Anonymous      bool
}

// AnonymousUser returns the principal for unauthenticated requests.
func AnonymousUser(auths visibility.Authorizations) *AuthenticatedUser {
	return &AuthenticatedUser{Name: "anonymous", Authorizations: auths, Anonymous: true}
}

// TokenValidator resolves a bearer token to a principal.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*AuthenticatedUser, error)
}

type contextKey int

const authUserKey contextKey = iota

// UserFromContext returns the principal set by the auth middleware, or nil.
func UserFromContext(ctx context.Context) *AuthenticatedUser {
	user, _ := ctx.Value(authUserKey).(*AuthenticatedUser)
	return user
}

// ContextWithUser attaches user to ctx.
func ContextWithUser(ctx context.Context, user *AuthenticatedUser) context.Context {
	return context.WithValue(ctx, authUserKey, user)
}

// StaticToken maps one configured bearer token to a principal.
type StaticToken struct {
	Token          string
	Principal      string
	Authorizations []string
}

type tokenEntry struct {
	digest [sha256.Size]byte
	user   *AuthenticatedUser
}

// StaticTokenValidator checks bearer tokens against a fixed list. Tokens are
// kept as SHA-256 digests and compared in constant time.
type StaticTokenValidator struct {
	entries []tokenEntry
}

func NewStaticTokenValidator(tokens []StaticToken) *StaticTokenValidator {
	v := &StaticTokenValidator{entries: make([]tokenEntry, 0, len(tokens))}
	for _, t := range tokens {
		v.entries = append(v.entries, tokenEntry{
			digest: sha256.Sum256([]byte(t.Token)),
			user: &AuthenticatedUser{
				Name:           t.Principal,
				Authorizations: visibility.NewAuthorizations(t.Authorizations...),
			},
		})
	}
	return v
}

func (v *StaticTokenValidator) ValidateToken(_ context.Context, token string) (*AuthenticatedUser, error) {
	digest := sha256.Sum256([]byte(token))
	var found *AuthenticatedUser
	// Every entry is compared so timing does not reveal the match position.
	for _, e := range v.entries {
		if subtle.ConstantTimeCompare(digest[:], e.digest[:]) == 1 {
			found = e.user
		}
	}
	if found == nil {
		return nil, sgerr.New(sgerr.CodeServerAuthUnauthorized, "invalid token")
	}
	return found, nil
}

// NewAuthMiddleware authenticates requests under /api/. A nil validator
// disables authentication and every request runs as anonymous. Requests
// without an Authorization header run as anonymous only when allowAnonymous
// is set.
func NewAuthMiddleware(validator TokenValidator, anonymous *AuthenticatedUser, allowAnonymous bool, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if anonymous == nil {
		anonymous = AnonymousUser(visibility.NewAuthorizations())
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}
			if validator == nil {
				next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), anonymous)))
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				if allowAnonymous {
					next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), anonymous)))
					return
				}
				writeAuthError(w, http.StatusUnauthorized, "authorization header required")
				return
			}

			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeAuthError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			user, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				status := http.StatusUnauthorized
				msg := "invalid token"
				if sgerr.HasCode(err, sgerr.CodeServerAuthForbidden) {
					status = http.StatusForbidden
					msg = "forbidden"
				}
				logger.Warn("authentication failed",
					slog.String("path", r.URL.Path),
					slog.String("remote", r.RemoteAddr),
					slog.String("code", string(sgerr.CodeOf(err))),
				)
				writeAuthError(w, status, msg)
				return
			}

			logger.Debug("request authenticated",
				slog.String("principal", user.Name),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
