package jwtinfra

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

const resetPurpose = "password_reset"

type resetClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// ResetSigner produces self-contained password reset tokens. Nothing is stored;
// a token is valid for as long as its signature holds and its age is within maxAge.
type ResetSigner struct {
	key  []byte
	nowF func() time.Time
}

// NewResetSigner derives the HMAC key from secret and salt. An empty secret
// yields a random per-process key, so links die with the process.
func NewResetSigner(secret, salt string, now func() time.Time) (*ResetSigner, error) {
	if now == nil {
		now = time.Now
	}
	if secret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate reset key: %w", err)
		}
		secret = string(b)
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(resetPurpose + ":" + salt))
	return &ResetSigner{key: mac.Sum(nil), nowF: now}, nil
}

func (s *ResetSigner) Generate(email string) (string, error) {
	claims := resetClaims{
		Purpose: resetPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  email,
			IssuedAt: jwt.NewNumericDate(s.nowF()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return signed, nil
}

// Verify returns the email encoded in token. Tokens older than maxAge fail with
// ErrResetTokenStale; anything else wrong with them fails with ErrResetTokenInvalid.
func (s *ResetSigner) Verify(token string, maxAge time.Duration) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &resetClaims{}, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.nowF))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrResetTokenInvalid, err)
	}
	claims, ok := parsed.Claims.(*resetClaims)
	if !ok || claims.Purpose != resetPurpose || claims.Subject == "" || claims.IssuedAt == nil {
		return "", domain.ErrResetTokenInvalid
	}
	if s.nowF().Sub(claims.IssuedAt.Time) > maxAge {
		return "", domain.ErrResetTokenStale
	}
	return claims.Subject, nil
}
