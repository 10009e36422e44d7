package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/api/middleware"
	"github.com/trimlyhq/trimly-backend/internal/rbac"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
)

// actorFromRequest rebuilds the authenticated principal from the context the
// auth middleware seeded.
func actorFromRequest(r *http.Request) (rbac.Actor, error) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return rbac.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return rbac.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}

	actor := rbac.Actor{UserID: userID, Role: role}
	if raw := middleware.EstablishmentIDFromContext(r.Context()); raw != "" {
		establishmentID, err := uuid.Parse(raw)
		if err != nil {
			return rbac.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
		}
		actor.EstablishmentID = &establishmentID
	}
	return actor, nil
}

// pathUUID parses a chi URL parameter as a uuid.
func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "path parameter must be a uuid").
			WithDetails(map[string]any{"field": key})
	}
	return id, nil
}
