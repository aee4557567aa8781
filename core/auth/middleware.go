package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/swasthik/sarathi/api/web"
	"github.com/swasthik/sarathi/api/weberr"
	"github.com/swasthik/sarathi/core/claims"
)

const (
	userKey = "userID"
	roleKey = "role"
)

// LoadAndSave wraps handlers with the session middleware, loading the
// session on the way in and committing it on the way out.
func LoadAndSave(session *scs.SessionManager) web.Middleware {
	return func(handler web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			var err error
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				err = handler(r.Context(), w, r)
			})

			session.LoadAndSave(h).ServeHTTP(w, r)
			return err
		}
	}
}

// Authenticate rejects requests lacking a logged-in session and loads
// the session identity into the context claims.
func Authenticate(session *scs.SessionManager) web.Middleware {
	return func(handler web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			userID := session.GetString(ctx, userKey)
			if userID == "" {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}

			ctx = claims.Set(ctx, claims.Claims{
				UserID: userID,
				Role:   session.GetString(ctx, roleKey),
			})

			return handler(ctx, w, r)
		}
	}
}

// Admin lets only authenticated administrators through.
func Admin(session *scs.SessionManager) web.Middleware {
	return func(handler web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			userID := session.GetString(ctx, userKey)
			if userID == "" {
				return weberr.NotAuthorized(errors.New("user not authenticated"))
			}

			role := session.GetString(ctx, roleKey)
			if role != claims.RoleAdmin {
				return weberr.Forbidden(errors.New("user is not an administrator"))
			}

			ctx = claims.Set(ctx, claims.Claims{UserID: userID, Role: role})

			return handler(ctx, w, r)
		}
	}
}

// WithClaims loads the session identity into the claims when present but
// never rejects, for endpoints that adapt to logged-in viewers.
func WithClaims(session *scs.SessionManager) web.Middleware {
	return func(handler web.Handler) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if userID := session.GetString(ctx, userKey); userID != "" {
				ctx = claims.Set(ctx, claims.Claims{
					UserID: userID,
					Role:   session.GetString(ctx, roleKey),
				})
			}

			return handler(ctx, w, r)
		}
	}
}
