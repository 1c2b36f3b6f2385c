// Package middleware provides HTTP middleware for the flightdeck API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Scopes accepted on inbound requests.
const (
	// ScopeRead allows reading flight declarations and telemetry.
	ScopeRead = "blender.read"

	// ScopeWrite allows submitting declarations, state changes and telemetry.
	ScopeWrite = "blender.write"

	// ScopeStrategicCoordination is the ASTM F3548-21 scope peer USSes use on
	// the inbound operational intent endpoints.
	ScopeStrategicCoordination = "utm.strategic_coordination"
)

// Context key type for storing claims
type contextKey string

const claimsContextKey contextKey = "claims"

// GetClaimsFromContext retrieves JWT claims from the request context.
// Returns nil if no claims are present.
//
// This function should only be called within handler code that runs after the
// RequireScope middleware has processed the request. Routes without the
// middleware, or deployments with verification disabled, see nil.
func GetClaimsFromContext(ctx context.Context) jwt.MapClaims {
	claims, ok := ctx.Value(claimsContextKey).(jwt.MapClaims)
	if !ok {
		return nil
	}
	return claims
}

// extractBearerToken extracts the token from a Bearer Authorization header.
// Returns the token string and true if successful, or empty string and false if not.
func extractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	return parts[1], true
}

// RequireScope validates the Bearer token with the shared secret and checks
// that its space-separated "scope" claim carries the required scope.
// Missing or invalid tokens get 401, a missing scope gets 403.
//
// An empty secret disables verification entirely (development only).
func RequireScope(secret, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := extractBearerToken(r)
			if !ok {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			claims := jwt.MapClaims{}
			_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			if !hasScope(claims, scope) {
				http.Error(w, "Insufficient scope", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// hasScope reports whether the space-separated "scope" claim contains scope.
func hasScope(claims jwt.MapClaims, scope string) bool {
	raw, ok := claims["scope"].(string)
	if !ok {
		return false
	}
	for _, granted := range strings.Fields(raw) {
		if granted == scope {
			return true
		}
	}
	return false
}
