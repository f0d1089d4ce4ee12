package client

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of access-token claims the client reads. The portal
// signs tokens server-side; the client never verifies them, it only peeks.
type Claims struct {
	UserID    string
	Email     string
	Role      string
	ExpiresAt time.Time
}

// ParseClaims extracts user information from an access token without verifying it
func ParseClaims(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, ErrInvalidToken
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}

	// The portal has issued both "sub" and "userId" over time
	if sub, err := mc.GetSubject(); err == nil && sub != "" {
		claims.UserID = sub
	}
	for _, key := range []string{"userId", "user_id", "id"} {
		if claims.UserID != "" {
			break
		}
		switch v := mc[key].(type) {
		case string:
			claims.UserID = v
		case float64:
			claims.UserID = formatNumericID(v)
		}
	}

	if email, ok := mc["email"].(string); ok {
		claims.Email = email
	}
	if role, ok := mc["role"].(string); ok {
		claims.Role = role
	}

	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	return claims, nil
}

// TokenExpiry returns the exp claim of a JWT, or the zero time when absent or unparseable
func TokenExpiry(tokenString string) time.Time {
	claims, err := ParseClaims(tokenString)
	if err != nil {
		return time.Time{}
	}
	return claims.ExpiresAt
}

// IsTokenExpired checks if a JWT token is expired without extracting all claims
// Returns true if expired or if the token cannot be parsed
func IsTokenExpired(tokenString string) bool {
	claims, err := ParseClaims(tokenString)
	if err != nil {
		return true
	}

	// No expiration claim means we can't determine - treat as not expired
	// (the backend will reject it if it's actually invalid)
	if claims.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(claims.ExpiresAt)
}

func formatNumericID(v float64) string {
	return strconv.FormatInt(int64(v), 10)
}
