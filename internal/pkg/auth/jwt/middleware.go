package jwt

import (
	"context"
	"net/http"
	"strings"

	"lawchat/internal/pkg/errs"
	"lawchat/internal/pkg/logx"
	"lawchat/internal/pkg/resp"
)

// Define Context Key for storing the Claims struct, preventing key collisions with other packages.
type contextKey string

const (
	// ContextAuthClaimsKey is the key used to store the parsed jwt.Claims (user identity) in the request Context.
	ContextAuthClaimsKey contextKey = "auth_claims"
)

// RequireAuth extracts and validates the Bearer token from the Authorization header.
// It injects the Claims into the Context upon success and rejects the request with
// HTTP 401 when the token is missing, malformed, or invalid.
func RequireAuth(secretKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}

			// Expected format: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}
			tokenString := parts[1]

			claims, err := ParseToken(tokenString, secretKey)
			if err != nil {
				logx.Warn("Invalid or expired JWT provided", "error", err)
				resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
				return
			}

			ctx := context.WithValue(r.Context(), ContextAuthClaimsKey, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaimsFromContext safely extracts the authenticated Claims from the request Context.
// A nil return means the request did not pass through RequireAuth.
func GetClaimsFromContext(r *http.Request) *Claims {
	claims, ok := r.Context().Value(ContextAuthClaimsKey).(*Claims)

	if !ok {
		return nil
	}

	return claims
}
