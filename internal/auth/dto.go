package auth

import (
	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/internal/users"
)

// RegisterRequest is the payload for a new customer account.
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginRequest carries the credentials for an existing account.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse returns the minted access token plus the account summary.
type AuthResponse struct {
	AccessToken     string         `json:"access_token"`
	EstablishmentID *uuid.UUID     `json:"establishment_id,omitempty"`
	User            *users.UserDTO `json:"user"`
}
