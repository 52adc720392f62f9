package auth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/aliuyar1234/pmdash/internal/apperrors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// UserContextKey is the context key for the authenticated User
	UserContextKey contextKey = "user"
)

// AuthMiddleware validates the session cookie and injects the user into context.
// If the session is invalid, it clears the cookie and continues without authentication.
func AuthMiddleware(secret string, isProduction bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := GetSessionCookie(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ValidateToken(token, secret)
			if err != nil {
				log.Debug().Err(err).Msg("Invalid session token")
				ClearSessionCookie(w, isProduction)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.User())))
		})
	}
}

// RequireAuth rejects unauthenticated API requests with a 401 envelope.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == uuid.Nil {
			apperrors.WriteUnauthorized(w, r, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuthPage redirects unauthenticated page requests to the login page,
// preserving the original path in returnTo.
func RequireAuthPage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == uuid.Nil {
			target := "/login?returnTo=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// GetUser retrieves the authenticated user from ctx.
func GetUser(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(UserContextKey).(User)
	if !ok || user.ID == uuid.Nil {
		return User{}, false
	}
	return user, true
}

// GetUserID retrieves the user ID from the request context
// Returns uuid.Nil if no user is authenticated
func GetUserID(ctx context.Context) uuid.UUID {
	user, ok := GetUser(ctx)
	if !ok {
		return uuid.Nil
	}
	return user.ID
}
