package auth

import (
	"context"
	"net/http"

	"ms-booking/internal/logger"
	"ms-booking/internal/utils"
)

type contextKey string

const principalKey contextKey = "principal"

// Middleware authenticates every request with v and stores the Principal
// in the request context.
func Middleware(v Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawToken, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "UNAUTHORIZED", err.Error()))
				return
			}
			p, err := v.Verify(r.Context(), rawToken)
			if err != nil || p.UserID == "" {
				log.LogSecurity("AUTH", "rejected token on "+r.URL.Path)
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "UNAUTHORIZED", "invalid token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireStaff lets only staff principals through.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsStaff(r.Context()) {
			utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "FORBIDDEN", "staff only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// Helper to extract user ID in handlers
func UserID(ctx context.Context) string {
	p, _ := PrincipalFrom(ctx)
	return p.UserID
}

func IsStaff(ctx context.Context) bool {
	p, _ := PrincipalFrom(ctx)
	return p.Staff
}
