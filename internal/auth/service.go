package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/trimlyhq/trimly-backend/internal/users"
	pkgauth "github.com/trimlyhq/trimly-backend/pkg/auth"
	"github.com/trimlyhq/trimly-backend/pkg/config"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/security"
)

const invalidCredentialsMessage = "invalid credentials"

// Service handles account registration and credential exchange.
type Service struct {
	users       *users.Repository
	passwordCfg config.PasswordConfig
	jwtCfg      config.JWTConfig
	logg        *logger.Logger
}

func NewService(repo *users.Repository, passwordCfg config.PasswordConfig, jwtCfg config.JWTConfig, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{
		users:       repo,
		passwordCfg: passwordCfg,
		jwtCfg:      jwtCfg,
		logg:        logg,
	}, nil
}

// Register creates a customer account. Establishment-side roles are granted
// later, when an owner creates an establishment or adds staff.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	if existing, err := s.users.FindByEmail(ctx, email); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
		}
	} else if existing != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "email already registered")
	}

	hash, err := security.HashPassword(req.Password, s.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	user := &models.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		Role:         enums.RoleCustomer,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}
	s.logg.Info(s.logg.WithField(ctx, "user_id", user.ID.String()), "user registered")

	return s.issueToken(ctx, user)
}

// Login verifies the credentials and mints an access token carrying the
// account's role and establishment scope.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	valid, err := security.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, invalidCredentialsMessage)
	}

	return s.issueToken(ctx, user)
}

// Me returns the account behind an authenticated request.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*users.UserDTO, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}
	return users.FromModel(user), nil
}

func (s *Service) issueToken(ctx context.Context, user *models.User) (*AuthResponse, error) {
	establishmentID, err := s.resolveEstablishment(ctx, user)
	if err != nil {
		return nil, err
	}

	token, err := pkgauth.MintAccessToken(s.jwtCfg, time.Now().UTC(), pkgauth.AccessTokenPayload{
		UserID:          user.ID,
		Role:            user.Role,
		EstablishmentID: establishmentID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint jwt")
	}

	return &AuthResponse{
		AccessToken:     token,
		EstablishmentID: establishmentID,
		User:            users.FromModel(user),
	}, nil
}

// resolveEstablishment finds the business an establishment-side account acts
// for. Owners and admins resolve through ownership, staff through their
// active staff row.
func (s *Service) resolveEstablishment(ctx context.Context, user *models.User) (*uuid.UUID, error) {
	if !user.Role.IsEstablishmentSide() {
		return nil, nil
	}

	switch user.Role {
	case enums.RoleOwner, enums.RoleAdmin:
		est, err := s.users.EstablishmentForOwner(ctx, user.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve owned establishment")
		}
		if est == nil {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no establishment linked to this account")
		}
		id := est.ID
		return &id, nil
	case enums.RoleStaff:
		id, err := s.users.EstablishmentForStaff(ctx, user.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve staff establishment")
		}
		if id == nil {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no establishment linked to this account")
		}
		return id, nil
	}
	return nil, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
