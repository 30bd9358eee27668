package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth/v5"

	"github.com/williamsbolu/natours/internal/domain"
	"github.com/williamsbolu/natours/internal/http/response"
	"github.com/williamsbolu/natours/internal/service"
	"github.com/williamsbolu/natours/pkg/logger"
)

type ctxKey string

const ctxUser ctxKey = "user"

// TokenFromRequest reads the bearer header first, then the jwt cookie.
func TokenFromRequest(r *http.Request) string {
	if tok := jwtauth.TokenFromHeader(r); tok != "" {
		return tok
	}
	return jwtauth.TokenFromCookie(r)
}

// Protect rejects the request unless it carries a valid, current session token.
func Protect(gate service.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := gate.Authenticate(r.Context(), TokenFromRequest(r))
			if err != nil {
				response.FromError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// RestrictTo must run after Protect.
func RestrictTo(gate service.Gate, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := UserFrom(r.Context())
			if user == nil {
				response.FromError(w, r, domain.NewError(domain.ErrUnauthenticated, "You are not logged in! Please log in to get access."))
				return
			}
			if err := gate.Authorize(user.Identity(), roles...); err != nil {
				response.FromError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsLoggedIn attaches the user when the token is good and otherwise carries on anonymously.
func IsLoggedIn(gate service.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := gate.TryAuthenticate(r.Context(), TokenFromRequest(r)); user != nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithUser(ctx context.Context, user *domain.User) context.Context {
	ctx = context.WithValue(ctx, ctxUser, user)
	return logger.WithUserID(ctx, user.ID)
}

func UserFrom(ctx context.Context) *domain.User {
	user, _ := ctx.Value(ctxUser).(*domain.User)
	return user
}
