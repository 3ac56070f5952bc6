// Package identity resolves connection tokens to stable user IDs.
package identity

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthorized = errors.New("unauthorized")

// Provider turns an opaque token into a userID or fails the connection.
type Provider interface {
	Resolve(token string) (string, error)
}

// JWT validates HS256 tokens issued by the auth service and reads the
// user ID from the subject claim.
type JWT struct {
	secret []byte
}

func NewJWT(secret string) *JWT {
	return &JWT{secret: []byte(secret)}
}

func (j *JWT) Resolve(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrUnauthorized
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", ErrUnauthorized
	}
	return sub, nil
}

// Static maps tokens straight to user IDs; test and dev-mode provider.
type Static map[string]string

func (s Static) Resolve(token string) (string, error) {
	userID, ok := s[token]
	if !ok {
		return "", ErrUnauthorized
	}
	return userID, nil
}
