package checkin

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/pkg/config"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
)

const tokenType = "checkin"

// TokenClaims is the signed payload of a check-in token. The token is a
// capability for one establishment, not a user credential: it names the
// establishment and the role that issued it, never the customer.
type TokenClaims struct {
	EstablishmentID string `json:"est"`
	IssuedByRole    string `json:"role"`
	TokenType       string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies short-lived check-in tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenIssuer(jwtCfg config.JWTConfig, checkInCfg config.CheckInConfig) (*TokenIssuer, error) {
	if jwtCfg.Secret == "" {
		return nil, fmt.Errorf("check-in token secret required")
	}
	if checkInCfg.TokenTTL() <= 0 {
		return nil, fmt.Errorf("check-in token ttl must be positive")
	}
	return &TokenIssuer{
		secret: []byte(jwtCfg.Secret),
		issuer: jwtCfg.Issuer,
		ttl:    checkInCfg.TokenTTL(),
	}, nil
}

// Issue signs a token for the establishment, expiring after the configured
// TTL.
func (i *TokenIssuer) Issue(establishmentID uuid.UUID, issuedByRole string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(i.ttl)
	claims := TokenClaims{
		EstablishmentID: establishmentID.String(),
		IssuedByRole:    issuedByRole,
		TokenType:       tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "signing check-in token")
	}
	return signed, expiresAt, nil
}

// Verify parses the token and returns its claims. Expiry and signature
// failures map to the two token error codes so callers never have to inspect
// jwt internals.
func (i *TokenIssuer) Verify(token string) (*TokenClaims, error) {
	var claims TokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.CodeTokenExpired, "check-in token expired")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeTokenInvalid, err, "check-in token rejected")
	}
	if claims.TokenType != tokenType {
		return nil, pkgerrors.New(pkgerrors.CodeTokenInvalid, "token is not a check-in token")
	}
	if _, err := uuid.Parse(claims.EstablishmentID); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeTokenInvalid, "token carries no establishment")
	}
	return &claims, nil
}

// Establishment returns the establishment id the token grants entry to.
func (c *TokenClaims) Establishment() uuid.UUID {
	id, _ := uuid.Parse(c.EstablishmentID)
	return id
}
