package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"chatline/internal/entity"
	"chatline/pkg/jwt"
)

type contextKey string

const UserContextKey contextKey = "user"

type AuthMiddleware struct {
	tokens *jwt.Manager
}

func NewAuthMiddleware(tokens *jwt.Manager) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
	}
}

func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(w, "invalid authorization header format")
			return
		}

		claims, err := m.tokens.ValidateAccessToken(parts[1])
		if err != nil {
			unauthorized(w, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerId returns the authenticated user id from the request context.
func CallerId(r *http.Request) string {
	claims, ok := r.Context().Value(UserContextKey).(*entity.TokenClaims)
	if !ok {
		return ""
	}
	return claims.UserId
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(Response{Message: message})
}
