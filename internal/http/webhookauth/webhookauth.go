// Package webhookauth authenticates payment-gateway callbacks with HS256
// bearer tokens.
package webhookauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/luisfernandobanegasro/parcial/internal/http/respond"
)

type contextKey struct{}

// Subject returns the authenticated caller stored by Middleware.
func Subject(ctx context.Context) string {
	sub, _ := ctx.Value(contextKey{}).(string)
	return sub
}

func Middleware(secret []byte, issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				unauthorized(w, "bearer token required")
				return
			}

			claims, err := parse(raw, secret, issuer)
			if err != nil {
				slog.Warn("webhook token rejected", "path", r.URL.Path, "error", err)
				unauthorized(w, "invalid token")

				return
			}

			ctx := context.WithValue(r.Context(), contextKey{}, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parse(raw string, secret []byte, issuer string) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}

	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	if !token.Valid {
		return nil, errors.New("token is not valid")
	}

	return claims, nil
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="webhooks"`)
	respond.WriteProblem(w, respond.Problem{Status: http.StatusUnauthorized, Detail: detail})
}
