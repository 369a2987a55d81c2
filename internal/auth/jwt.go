package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "devcollab"

// Claims carried by session tokens. The subject is the user id and the
// token id is used for revocation.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 session tokens.
type TokenManager struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewTokenManager(secret []byte, expiry time.Duration) *TokenManager {
	return &TokenManager{
		secret: secret,
		expiry: expiry,
		now:    time.Now,
	}
}

// Issue signs a token for userID. It returns the token and its expiry.
func (m *TokenManager) Issue(userID string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.expiry)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Parse verifies signature, algorithm and expiry and returns the claims.
// Every failure is reported as ErrInvalidToken.
func (m *TokenManager) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.Join(ErrInvalidToken, ErrTokenExpired)
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
