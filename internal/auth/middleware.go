package auth

import (
	"net/http"
	"strings"

	apperrors "github.com/lehrershow/songsubmit/internal/errors"
)

// Middleware requires a valid bearer token and attaches the caller's Identity.
func Middleware(verifier *Verifier) func(http.Handler) http.Handler {
	return middleware(verifier, false)
}

// QueryTokenMiddleware also accepts the token from the "token" query
// parameter. Browsers cannot set headers on websocket upgrades.
func QueryTokenMiddleware(verifier *Verifier) func(http.Handler) http.Handler {
	return middleware(verifier, true)
}

func middleware(verifier *Verifier, allowQuery bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := apperrors.GetRequestID(r.Context())

			tokenString, err := bearerToken(r, allowQuery)
			if err != nil {
				apperrors.WriteError(w, requestID, err)
				return
			}

			claims, err := verifier.Verify(tokenString)
			if err != nil {
				if err == ErrTokenExpired {
					apperrors.WriteError(w, requestID, apperrors.TokenExpired())
					return
				}
				apperrors.WriteError(w, requestID, apperrors.Unauthorized("invalid access token"))
				return
			}

			ctx := WithIdentity(r.Context(), &Identity{
				Subject: claims.Subject,
				Email:   claims.Email,
				Name:    claims.Name,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request, allowQuery bool) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if allowQuery {
			if token := r.URL.Query().Get("token"); token != "" {
				return token, nil
			}
		}
		return "", apperrors.Unauthorized("missing authorization header")
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", apperrors.Unauthorized("invalid authorization header format")
	}
	return strings.TrimSpace(token), nil
}
