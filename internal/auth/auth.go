// Package auth implements the signed-principal abstraction the relay uses
// to authorize bundle uploads: a JWT-backed TokenManager issues and
// verifies tokens carrying a peer identity and a set of permissions.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Permission string

const (
	PermissionReadOnly  Permission = "read"
	PermissionReadWrite Permission = "write"
	PermissionAdmin     Permission = "admin"
)

// Claims identifies the sync peer a token was issued to and what it may
// do against the relay's bundle store.
type Claims struct {
	PeerID      string       `json:"peer_id"`
	Permissions []Permission `json:"permissions"`
	jwt.RegisteredClaims
}

// TokenManager is the signed-principal verifier the relay consumes: it
// issues and validates signed tokens without the core ever needing to
// know they are JWTs.
type TokenManager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

func NewTokenManager(secretKey string) *TokenManager {
	return &TokenManager{
		secretKey:     []byte(secretKey),
		tokenDuration: 1 * time.Hour,
	}
}

// GenerateToken creates a new JWT token for a peer.
func (tm *TokenManager) GenerateToken(
	peerID string,
	permissions []Permission,
) (string, error) {
	claims := Claims{
		PeerID:      peerID,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tm.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secretKey)
}

// ValidateToken verifies and parses a JWT token.
func (tm *TokenManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return tm.secretKey, nil
		},
	)

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// RefreshToken generates a new token with extended expiration.
func (tm *TokenManager) RefreshToken(oldToken string) (string, error) {
	claims, err := tm.ValidateToken(oldToken)
	if err != nil {
		return "", err
	}

	return tm.GenerateToken(claims.PeerID, claims.Permissions)
}

// HasPermission reports whether claims grant the required permission.
// Admin implies every other permission.
func (c *Claims) HasPermission(required Permission) bool {
	for _, p := range c.Permissions {
		if p == required || p == PermissionAdmin {
			return true
		}
	}
	return false
}

// AuthMiddleware gates relay HTTP endpoints (e.g. PUT /bundle/<id>) behind
// a bearer token.
type AuthMiddleware struct {
	tokenManager *TokenManager
}

func NewAuthMiddleware(tokenManager *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokenManager: tokenManager}
}

type contextKey string

const claimsKey contextKey = "claims"

func (am *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			http.Error(w, "invalid authorization format", http.StatusUnauthorized)
			return
		}

		tokenString := authHeader[7:]
		claims, err := am.tokenManager.ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission wraps Authenticate, additionally rejecting requests
// whose claims lack the required permission.
func (am *AuthMiddleware) RequirePermission(required Permission, next http.Handler) http.Handler {
	return am.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaims(r.Context())
		if !ok || !claims.HasPermission(required) {
			http.Error(w, "insufficient permission", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}
