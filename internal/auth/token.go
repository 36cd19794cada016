package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"admincore.org/internal/ids"
)

// Claims is the payload of both issued tokens. Access tokens carry the
// role set; refresh tokens omit it and set IsRefresh. PasswordVersion
// binds the token to the credential state at issuance time: bumping the
// counter externally invalidates everything issued before.
type Claims struct {
	IsRefresh       bool     `json:"isRefresh"`
	RoleIDs         []string `json:"roleIds,omitempty"`
	UserID          string   `json:"userId"`
	PasswordVersion int      `json:"passwordVersion"`
	jwt.RegisteredClaims
}

func signToken(secret []byte, claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func parseToken(secret []byte, raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func newClaims(user *User, roleIDs []string, ttl time.Duration, isRefresh bool, now time.Time) Claims {
	claims := Claims{
		IsRefresh:       isRefresh,
		RoleIDs:         roleIDs,
		UserID:          user.ID,
		PasswordVersion: user.PasswordVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ids.New(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if isRefresh {
		claims.RoleIDs = nil
	}
	return claims
}
