package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/pagination"
)

// Service exposes the per-user notification inbox.
type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) (*Service, error) {
	if repo == nil || logg == nil {
		return nil, fmt.Errorf("notifications service is missing a dependency")
	}
	return &Service{repo: repo, logg: logg}, nil
}

// ListResult is one inbox page.
type ListResult struct {
	Items []models.Notification
	Total int64
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, page pagination.Params) (*ListResult, error) {
	items, total, err := s.repo.List(ctx, listParams{
		UserID:     userID,
		UnreadOnly: unreadOnly,
		Page:       pagination.Normalize(page),
	})
	if err != nil {
		return nil, err
	}
	return &ListResult{Items: items, Total: total}, nil
}

// MarkRead flips one notification to read. Re-reading an already-read row is
// a no-op, not an error.
func (s *Service) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	updated, err := s.repo.MarkRead(ctx, userID, notificationID, time.Now())
	if err != nil {
		return err
	}
	if updated {
		return nil
	}
	exists, err := s.repo.Exists(ctx, userID, notificationID)
	if err != nil {
		return err
	}
	if !exists {
		return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID, time.Now())
}
