package tokens

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// Signer issues and verifies HS256 access and refresh tokens. The two
// secrets are distinct so a refresh token never passes access verification.
type Signer struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func (s *Signer) SignAccess(userID uint, role string) (string, time.Time, error) {
	exp := time.Now().Add(s.AccessTTL)
	claims := AccessClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.AccessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *Signer) SignRefresh(userID uint, role string) (string, time.Time, error) {
	exp := time.Now().Add(s.RefreshTTL)
	claims := RefreshClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        NewJTI(),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.RefreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (s *Signer) VerifyAccess(raw string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := verify(raw, &claims, s.AccessSecret); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (s *Signer) VerifyRefresh(raw string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := verify(raw, &claims, s.RefreshSecret); err != nil {
		return nil, err
	}
	return &claims, nil
}

func verify(raw string, claims jwt.Claims, secret []byte) error {
	tkn, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !tkn.Valid {
		return ErrTokenInvalid
	}
	return nil
}

// DecodeExpiry reads the exp claim of a structurally well-formed token
// without verifying its signature. Used when blacklisting an access token on
// logout, where the remaining lifetime matters more than validity.
func DecodeExpiry(raw string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}
