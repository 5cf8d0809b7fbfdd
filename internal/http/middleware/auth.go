package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/medpractice-booking/internal/auth"
	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

type contextKey string

const holderKey contextKey = "principalHolder"

func withPrincipalHolder(ctx context.Context, h *principalHolder) context.Context {
	return context.WithValue(ctx, holderKey, h)
}

// PrincipalAuthenticator resolves a bearer token into a principal.
type PrincipalAuthenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// Authenticate requires a valid bearer token and stores the principal on the request context.
func Authenticate(authenticator PrincipalAuthenticator, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if token == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			principal, err := authenticator.Authenticate(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrInvalidToken),
				errors.Is(err, auth.ErrSessionRevoked),
				errors.Is(err, auth.ErrUnknownUser):
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			default:
				logger.Error("authentication failed", "error", err, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "authentication unavailable")
				return
			}

			if holder, ok := r.Context().Value(holderKey).(*principalHolder); ok {
				holder.principal = principal
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
		})
	}
}

// RequireRoles rejects principals holding none of roles with 403.
func RequireRoles(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !principal.HasRole(roles...) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
