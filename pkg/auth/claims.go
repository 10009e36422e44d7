package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole

	// EstablishmentID scopes establishment-side actors to the business they
	// act for. Customers carry none.
	EstablishmentID *uuid.UUID
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID          uuid.UUID       `json:"user_id"`
	Role            enums.ActorRole `json:"role"`
	EstablishmentID *uuid.UUID      `json:"establishment_id,omitempty"`
	jwt.RegisteredClaims
}
