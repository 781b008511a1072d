package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/jwtauth/v5"

	"github.com/wimarka/lakra/internal/auth"
	"github.com/wimarka/lakra/internal/models"
)

// Authenticator requires a valid bearer token verified by jwtauth.Verifier
// and stores the caller identity in the request context
func Authenticator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := principalFromRequest(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		if principal == nil {
			respondError(w, http.StatusUnauthorized, "unauthorized", "authorization token required")
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
	})
}

// OptionalAuth attaches the caller identity when a token is sent. Requests
// without a token pass through anonymously; a bad token is still rejected.
func OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := principalFromRequest(r)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		if principal != nil {
			r = r.WithContext(ContextWithPrincipal(r.Context(), principal))
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission returns middleware that checks the caller's role
func RequirePermission(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			if principal == nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			if !models.RoleHasPermission(principal.Role, permission) {
				slog.Warn("permission denied",
					"user_id", principal.UserID,
					"role", principal.Role,
					"required", permission,
				)
				respondError(w, http.StatusForbidden, "forbidden", "missing required permission: "+permission)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// principalFromRequest returns nil, nil when no token was sent
func principalFromRequest(r *http.Request) (*Principal, error) {
	token, claims, err := jwtauth.FromContext(r.Context())
	if errors.Is(err, jwtauth.ErrNoTokenFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if token == nil {
		return nil, nil
	}

	userID, err := auth.UserIDFromClaims(claims)
	if err != nil {
		return nil, err
	}
	role, err := auth.RoleFromClaims(claims)
	if err != nil {
		return nil, err
	}
	return &Principal{UserID: userID, Role: role}, nil
}

func writeAuthError(w http.ResponseWriter, err error) {
	slog.Debug("rejected token", "error", err)
	respondError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
}
