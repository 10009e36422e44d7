package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/trimlyhq/trimly-backend/pkg/db"
	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	pkgerrors "github.com/trimlyhq/trimly-backend/pkg/errors"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/outbox"
	"github.com/trimlyhq/trimly-backend/pkg/outbox/payloads"
)

// JoinInput describes a walk-in customer entering the line.
type JoinInput struct {
	EstablishmentID  uuid.UUID
	CustomerID       uuid.UUID
	ServiceID        *uuid.UUID
	PreferredStaffID *uuid.UUID
}

// Entry pairs a queue row with its derived position.
type Entry struct {
	models.QueueEntry
	Position int
}

// Service runs the walk-in line. Positions are always derived from
// entered_at ordering so joins and leaves cannot drift a stored counter.
type Service struct {
	dbc    *dbpkg.Client
	repo   *Repository
	outbox *outbox.Service
	logg   *logger.Logger
}

func NewService(dbc *dbpkg.Client, repo *Repository, outboxSvc *outbox.Service, logg *logger.Logger) (*Service, error) {
	if dbc == nil || repo == nil || outboxSvc == nil || logg == nil {
		return nil, fmt.Errorf("queue service is missing a dependency")
	}
	return &Service{dbc: dbc, repo: repo, outbox: outboxSvc, logg: logg}, nil
}

// Join adds the customer to the establishment's line. A customer holds at
// most one live entry per establishment.
func (s *Service) Join(ctx context.Context, input JoinInput) (*Entry, error) {
	establishment, err := s.repo.Establishment(ctx, input.EstablishmentID)
	if err != nil {
		return nil, err
	}
	if !establishment.Active {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "establishment is not operating")
	}
	if !establishment.QueueModeEnabled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "establishment does not run a walk-in queue")
	}

	var joined Entry
	entry := &models.QueueEntry{
		ID:               uuid.New(),
		EstablishmentID:  input.EstablishmentID,
		CustomerID:       input.CustomerID,
		ServiceID:        input.ServiceID,
		PreferredStaffID: input.PreferredStaffID,
		Status:           enums.QueueWaiting,
		EnteredAt:        time.Now().UTC(),
	}

	err = s.dbc.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.repo.InLineEntry(tx, input.EstablishmentID, input.CustomerID)
		if err != nil {
			return err
		}
		if existing != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "customer is already in the queue")
		}
		if err := s.repo.Create(tx, entry); err != nil {
			return err
		}
		position, err := s.repo.PositionTx(tx, entry)
		if err != nil {
			return err
		}
		joined = Entry{QueueEntry: *entry, Position: position}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQueueEntryJoined,
			AggregateType: enums.AggregateQueueEntry,
			AggregateID:   entry.ID,
			Version:       1,
			Data: payloads.QueueEntryJoinedEvent{
				EntryID:         entry.ID,
				EstablishmentID: entry.EstablishmentID,
				CustomerID:      entry.CustomerID,
				Position:        position,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return &joined, nil
}

// CallNext promotes the longest-waiting entry to called. Concurrent callers
// race on the conditional update and move on to the next row.
func (s *Service) CallNext(ctx context.Context, establishmentID uuid.UUID, staffID *uuid.UUID) (*models.QueueEntry, error) {
	var called *models.QueueEntry
	err := s.dbc.WithTx(ctx, func(tx *gorm.DB) error {
		for attempt := 0; attempt < 5; attempt++ {
			entry, err := s.repo.NextWaiting(tx, establishmentID)
			if err != nil {
				return err
			}
			if entry == nil {
				return pkgerrors.New(pkgerrors.CodeNotFound, "queue is empty")
			}
			now := time.Now().UTC()
			applied, err := s.repo.UpdateStatus(tx, entry.ID, enums.QueueWaiting, enums.QueueCalled,
				map[string]any{"called_at": now})
			if err != nil {
				return err
			}
			if !applied {
				continue
			}
			entry.Status = enums.QueueCalled
			entry.CalledAt = touch(now)
			called = entry
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventQueueEntryCalled,
				AggregateType: enums.AggregateQueueEntry,
				AggregateID:   entry.ID,
				Version:       1,
				Data: payloads.QueueEntryCalledEvent{
					EntryID:         entry.ID,
					EstablishmentID: entry.EstablishmentID,
					CustomerID:      entry.CustomerID,
					StaffID:         staffID,
				},
			})
		}
		return pkgerrors.New(pkgerrors.CodeConflict, "queue head kept changing")
	})
	if err != nil {
		return nil, err
	}
	return called, nil
}

// StartServing moves a called customer to the chair.
func (s *Service) StartServing(ctx context.Context, entryID uuid.UUID) (*models.QueueEntry, error) {
	return s.advance(ctx, entryID, enums.QueueCalled, enums.QueueServing, "started_at")
}

// CompleteServing finishes the visit.
func (s *Service) CompleteServing(ctx context.Context, entryID uuid.UUID) (*models.QueueEntry, error) {
	return s.advance(ctx, entryID, enums.QueueServing, enums.QueueCompleted, "completed_at")
}

// Leave removes a waiting or called customer from the line.
func (s *Service) Leave(ctx context.Context, entryID, actorID uuid.UUID, actorRole enums.ActorRole) (*models.QueueEntry, error) {
	var left *models.QueueEntry
	err := s.dbc.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := s.repo.Get(ctx, entryID)
		if err != nil {
			return err
		}
		if actorRole == enums.RoleCustomer && entry.CustomerID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "queue entry belongs to another customer")
		}
		if !entry.Status.InLine() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot leave from status %s", entry.Status))
		}
		applied, err := s.repo.UpdateStatus(tx, entry.ID, entry.Status, enums.QueueLeft, nil)
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "queue entry changed concurrently")
		}
		entry.Status = enums.QueueLeft
		left = entry
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventQueueEntryLeft,
			AggregateType: enums.AggregateQueueEntry,
			AggregateID:   entry.ID,
			Version:       1,
			Data: payloads.QueueEntryLeftEvent{
				EntryID:         entry.ID,
				EstablishmentID: entry.EstablishmentID,
				CustomerID:      entry.CustomerID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return left, nil
}

// List returns the live queue with derived positions.
func (s *Service) List(ctx context.Context, establishmentID uuid.UUID) ([]Entry, error) {
	rows, err := s.repo.ListInLine(ctx, establishmentID)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for i, row := range rows {
		entries = append(entries, Entry{QueueEntry: row, Position: i + 1})
	}
	return entries, nil
}

// PositionOf reports the customer's live position, NotFound when absent.
func (s *Service) PositionOf(ctx context.Context, establishmentID, customerID uuid.UUID) (*Entry, error) {
	entry, err := s.repo.InLineEntry(s.repo.DB(ctx), establishmentID, customerID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer is not in the queue")
	}
	position, err := s.repo.Position(ctx, entry)
	if err != nil {
		return nil, err
	}
	return &Entry{QueueEntry: *entry, Position: position}, nil
}

func (s *Service) advance(ctx context.Context, entryID uuid.UUID, from, to enums.QueueStatus, stampColumn string) (*models.QueueEntry, error) {
	var result *models.QueueEntry
	err := s.dbc.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := s.repo.Get(ctx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != from {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move a %s entry to %s", entry.Status, to))
		}
		now := time.Now().UTC()
		applied, err := s.repo.UpdateStatus(tx, entry.ID, from, to, map[string]any{stampColumn: now})
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "queue entry changed concurrently")
		}
		entry.Status = to
		result = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
