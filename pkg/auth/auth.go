package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/medgrid/clinic-scheduling/pkg/logger"
	"github.com/medgrid/clinic-scheduling/pkg/types"
)

type contextKey string

const authContextKey contextKey = "auth_context"

// JWTClaims represents JWT token claims
type JWTClaims struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// TokenValidator implements JWT token validation
type TokenValidator struct {
	jwtSecret []byte
}

// NewTokenValidator creates a new token validator
func NewTokenValidator(secret string) *TokenValidator {
	return &TokenValidator{
		jwtSecret: []byte(secret),
	}
}

// ValidateJWT validates a JWT token and returns the caller's auth context
func (tv *TokenValidator) ValidateJWT(tokenString string) (*types.AuthContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tv.jwtSecret, nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(time.Now()) {
		return nil, fmt.Errorf("token expired")
	}

	return &types.AuthContext{
		UserID:      claims.UserID,
		Permissions: claims.Permissions,
	}, nil
}

// Middleware returns an HTTP middleware that authenticates requests via the
// Authorization header and stores the resulting auth context on the request.
func (tv *TokenValidator) Middleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(header, "Bearer ")
			if tokenString == header {
				http.Error(w, `{"error":"invalid authorization header"}`, http.StatusUnauthorized)
				return
			}

			authCtx, err := tv.ValidateJWT(tokenString)
			if err != nil {
				log.WithError(err).Warn("Token validation failed")
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authContextKey, authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext extracts the auth context stored by Middleware.
// It returns nil when the request was not authenticated.
func FromContext(ctx context.Context) *types.AuthContext {
	authCtx, ok := ctx.Value(authContextKey).(*types.AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// WithContext stores an auth context on a context, used by tests.
func WithContext(ctx context.Context, authCtx *types.AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}
