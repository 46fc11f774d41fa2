package controllers

import (
	"context"
	"net/http"

	"github.com/rzbill/listsync/internal/auth"
)

type claimsKey struct{}

// RequireAuth rejects requests without a valid bearer token and stores the
// claims on the request context.
func RequireAuth(issuer *auth.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, err := auth.TokenFromRequest(r)
			if err == nil && r.Header.Get("Authorization") == "" {
				// query tokens are for websocket upgrades only
				err = auth.ErrMissingToken
			}
			var claims *auth.Claims
			if err == nil {
				claims, err = issuer.Verify(tok)
			}
			if err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
		})
	}
}

// ClaimsFrom returns the claims stored by RequireAuth.
func ClaimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}
