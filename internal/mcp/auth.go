// ABOUTME: Bearer token handling for the nanobot HTTP endpoint
// ABOUTME: Rejects JWTs whose exp claim has passed; opaque tokens pass through unchecked

package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// checkToken inspects token without verifying its signature. Only the
// server can verify it; the client only avoids sending one it knows is stale.
func checkToken(token string, now time.Time) error {
	if token == "" || strings.Count(token, ".") != 2 {
		return nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	if now.After(exp.Time) {
		return fmt.Errorf("%w at %s", ErrTokenExpired, exp.Time.UTC().Format(time.RFC3339))
	}
	return nil
}
