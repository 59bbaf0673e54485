package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Issuer is "iss" claim of tokens issued and accepted.
const Issuer = "gallerysync"

// Keyring signs and verifies identity tokens with HMAC-SHA256.
type Keyring struct {
	key []byte
	now func() time.Time
}

func NewKeyring(key []byte) *Keyring {
	return &Keyring{key: key, now: time.Now}
}

// NewJWS issues a token for subject, which expires after ttl.
//
// # Returns
//
// - string: JWT token string
//
// - error: from [jwt.Token.SignedString]
func (k *Keyring) NewJWS(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := k.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return tok.SignedString(k.key)
}

// Verify verifies a token and returns the identity in it.
//
// # Returns
//
// - Identity: identity having the subject of the token.
//
// - error: wraps [ErrInvalidToken] when the token is malformed, expired,
// has no subject, or is not signed with the key.
func (k *Keyring) Verify(token string) (Identity, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		token, claims,
		func(*jwt.Token) (interface{}, error) { return k.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(k.now),
	)
	if err != nil {
		return Identity{}, errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, errors.Join(ErrInvalidToken, errors.New(`no "sub" claim`))
	}
	return Identity{Subject: claims.Subject}, nil
}
