package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/trimlyhq/trimly-backend/pkg/db/models"
	"github.com/trimlyhq/trimly-backend/pkg/enums"
	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/outbox"
	"github.com/trimlyhq/trimly-backend/pkg/outbox/idempotency"
	"github.com/trimlyhq/trimly-backend/pkg/outbox/payloads"
)

const inboxConsumer = "inbox"

// Consumer turns published domain events into inbox notifications. Delivery
// is at-least-once; the idempotency manager dedupes on event id.
type Consumer struct {
	repo        *Repository
	idempotency *idempotency.Manager
	logg        *logger.Logger
}

func NewConsumer(repo *Repository, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil || manager == nil || logg == nil {
		return nil, fmt.Errorf("notifications consumer is missing a dependency")
	}
	return &Consumer{repo: repo, idempotency: manager, logg: logg}, nil
}

// Run drains the subscription until the context is cancelled. Handling
// errors are logged, never fatal; the marker is cleared so a redelivery can
// retry.
func (c *Consumer) Run(ctx context.Context, sub *goredis.PubSub) error {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := c.Handle(ctx, []byte(msg.Payload)); err != nil {
				c.logg.Error(ctx, "notification handling failed", err)
			}
		}
	}
}

// Handle processes one published message.
func (c *Consumer) Handle(ctx context.Context, raw []byte) error {
	var message outbox.Message
	if err := json.Unmarshal(raw, &message); err != nil {
		c.logg.Warn(ctx, "dropping undecodable event message")
		return nil
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_type": message.EventType.String(),
		"event_id":   message.Envelope.EventID,
	})

	eventID, err := uuid.Parse(message.Envelope.EventID)
	if err != nil {
		c.logg.Warn(logCtx, "dropping event without a valid id")
		return nil
	}

	notification, err := translate(message)
	if err != nil {
		c.logg.Warn(logCtx, "dropping event with a malformed payload")
		return nil
	}
	if notification == nil {
		return nil
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, inboxConsumer, eventID)
	if err != nil {
		return err
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	if err := c.repo.Create(ctx, notification); err != nil {
		_ = c.idempotency.Delete(ctx, inboxConsumer, eventID)
		return err
	}
	c.logg.Info(logCtx, "notification recorded")
	return nil
}

// translate maps an event to an inbox row, or nil for event types the inbox
// does not surface.
func translate(message outbox.Message) (*models.Notification, error) {
	switch message.EventType {
	case enums.EventAppointmentCreated:
		var payload payloads.AppointmentCreatedEvent
		if err := json.Unmarshal(message.Envelope.Data, &payload); err != nil {
			return nil, err
		}
		return &models.Notification{
			ID:              uuid.New(),
			UserID:          payload.CustomerID,
			EstablishmentID: &payload.EstablishmentID,
			Type:            enums.NotificationBooking,
			Title:           "Appointment booked",
			Message:         fmt.Sprintf("Your appointment on %s is booked.", payload.ScheduledAt.Format("Mon, 2 Jan 15:04")),
		}, nil
	case enums.EventAppointmentStatusChanged:
		var payload payloads.AppointmentStatusChangedEvent
		if err := json.Unmarshal(message.Envelope.Data, &payload); err != nil {
			return nil, err
		}
		return &models.Notification{
			ID:              uuid.New(),
			UserID:          payload.CustomerID,
			EstablishmentID: &payload.EstablishmentID,
			Type:            enums.NotificationBooking,
			Title:           "Appointment updated",
			Message:         fmt.Sprintf("Your appointment is now %s.", payload.To),
		}, nil
	case enums.EventQueueEntryCalled:
		var payload payloads.QueueEntryCalledEvent
		if err := json.Unmarshal(message.Envelope.Data, &payload); err != nil {
			return nil, err
		}
		return &models.Notification{
			ID:              uuid.New(),
			UserID:          payload.CustomerID,
			EstablishmentID: &payload.EstablishmentID,
			Type:            enums.NotificationQueue,
			Title:           "You're up",
			Message:         "It is your turn; please head to the counter.",
		}, nil
	case enums.EventCheckInRedeemed:
		var payload payloads.CheckInRedeemedEvent
		if err := json.Unmarshal(message.Envelope.Data, &payload); err != nil {
			return nil, err
		}
		return &models.Notification{
			ID:              uuid.New(),
			UserID:          payload.CustomerID,
			EstablishmentID: &payload.EstablishmentID,
			Type:            enums.NotificationCheckIn,
			Title:           "Checked in",
			Message:         "Your visit is confirmed. Enjoy!",
		}, nil
	case enums.EventSubscriptionRenewed:
		var payload payloads.SubscriptionRenewedEvent
		if err := json.Unmarshal(message.Envelope.Data, &payload); err != nil {
			return nil, err
		}
		return &models.Notification{
			ID:      uuid.New(),
			UserID:  payload.CustomerID,
			Type:    enums.NotificationSubscription,
			Title:   "Subscription renewed",
			Message: fmt.Sprintf("Your plan renewed through %s.", payload.PeriodEnd.Format("2 Jan 2006")),
		}, nil
	}
	return nil, nil
}
