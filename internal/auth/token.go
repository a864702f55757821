package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carried by access tokens issued by the identity provider. This
// service only verifies; it never issues tokens.
type Claims struct {
	PersonID  string `json:"person_id"`
	AccountID string `json:"account_id"`
	jwt.RegisteredClaims
}

// TokenManager verifies HMAC-signed access tokens.
type TokenManager struct {
	secret []byte
}

// NewTokenManager builds a verifier for the shared secret.
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

// Parse validates the signature and expiry and returns the claims.
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	if claims.PersonID == "" {
		return nil, fmt.Errorf("token missing person_id claim")
	}
	return claims, nil
}
