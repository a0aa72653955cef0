package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingSubject is returned for tokens that do not name a user
var ErrMissingSubject = errors.New("token has no subject")

// Claims identifies the user a request acts for. The user id is the subject.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject of the token
func (c *Claims) UserID() string {
	return c.Subject
}

// MintToken signs an access token for userID. It is used by the CLI and
// tests; production tokens come from the identity provider in front of the API.
func MintToken(userID, name, secret, issuer string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	return token.SignedString([]byte(secret))
}

// ParseClaims verifies tokenStr and returns its claims. An empty issuer skips
// the issuer check.
func ParseClaims(tokenStr, secret, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if c.Subject == "" {
		return nil, ErrMissingSubject
	}
	return c, nil
}
