package auth

import (
	"context"
	"time"

	"github.com/flexprice/pullpay/internal/config"
	ierr "github.com/flexprice/pullpay/internal/errors"
	"github.com/flexprice/pullpay/internal/types"
	"github.com/golang-jwt/jwt/v4"
)

// DefaultTokenTTL is used when GenerateToken is given no ttl
const DefaultTokenTTL = 30 * 24 * time.Hour

type jwtAuth struct {
	AuthConfig config.AuthConfig
	now        func() time.Time
}

func NewJWTAuth(cfg *config.Configuration) *jwtAuth {
	return &jwtAuth{
		AuthConfig: cfg.Auth,
		now:        time.Now,
	}
}

func (j *jwtAuth) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}

	claims := &jwt.RegisteredClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(j.AuthConfig.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ierr.NewError("token parse error").
			WithHint("Invalid token").
			Mark(ierr.ErrPermissionDenied)
	}

	caller, err := types.ParseAddress(claims.Subject)
	if err != nil || caller.IsZero() {
		return nil, ierr.NewError("token subject is not an address").
			WithHint("Invalid token claims").
			Mark(ierr.ErrPermissionDenied)
	}

	out := &Claims{Caller: caller}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (j *jwtAuth) GenerateToken(caller types.Address, ttl time.Duration) (string, error) {
	if caller.IsZero() {
		return "", ierr.NewError("caller is required").
			WithHint("A non-zero caller address is required").
			Mark(ierr.ErrValidation)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := j.now()
	claims := jwt.RegisteredClaims{
		Subject:   caller.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(j.AuthConfig.Secret))
	if err != nil {
		return "", ierr.WithError(err).
			WithHint("Failed to generate token").
			Mark(ierr.ErrSystem)
	}
	return signed, nil
}
