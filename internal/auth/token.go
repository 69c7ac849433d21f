// Package auth implements the credential contract consumed by the
// coordinator: issuing a signed token for a display name that is unique
// among currently active users, and verifying presented tokens back into
// identities.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, carries a bad
	// signature, or was signed with an unexpected method.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a token's lifetime has elapsed.
	ErrExpiredToken = errors.New("token has expired")
	// ErrRevokedToken is returned when a token is well-formed but its
	// issuing session is no longer active.
	ErrRevokedToken = errors.New("token session is no longer active")
)

// Identity is the authenticated principal bound to a connection.
type Identity struct {
	UserID      string
	DisplayName string
}

// Claims is the token payload: the identity plus a session id in the
// registered ID claim that ties the token to one login.
type Claims struct {
	DisplayName string `json:"displayName"`
	jwt.RegisteredClaims
}

func (i *Issuer) signToken(userID, displayName, sessionID string) (string, error) {
	now := time.Now()
	claims := Claims{
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.cfg.Secret))
}

func (i *Issuer) parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(i.cfg.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
