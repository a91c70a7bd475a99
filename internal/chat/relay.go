// Package chat stores chat messages and relays them to the connections
// tagged with their user. The AI side that produces replies lives
// elsewhere and reaches us through the webhook.
package chat

import (
	"context"
	"time"

	"queuesync/internal/constants"
	"queuesync/internal/errors"
	"queuesync/internal/logfields"
	"queuesync/internal/metrics"
	"queuesync/internal/models"
	"queuesync/internal/privacy"
	"queuesync/internal/tracing"
	"queuesync/internal/validation"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

type Store interface {
	InsertChatMessage(ctx context.Context, msg *models.ChatMessage) error
	ListChatMessages(ctx context.Context, userID string, limit int) ([]*models.ChatMessage, error)
}

type Router interface {
	RouteChatMessage(userID, body string, direction models.ChatDirection) int
}

type Relay struct {
	store       Store
	router      Router
	adminUserID string
	logger      *logrus.Logger
	errLogger   *errors.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewRelay(store Store, router Router, cfg models.ChatConfig, logger *logrus.Logger, m *metrics.Metrics) *Relay {
	if logger == nil {
		logger = logrus.New()
	}
	adminUserID := cfg.AdminUserID
	if adminUserID == "" {
		adminUserID = constants.DefaultChatAdminUserID
	}
	return &Relay{
		store:       store,
		router:      router,
		adminUserID: adminUserID,
		logger:      logger,
		errLogger:   errors.NewLogger(logger),
		metrics:     m,
		now:         time.Now,
	}
}

func (r *Relay) AdminUserID() string {
	return r.adminUserID
}

// SendFromAdmin records a message typed by the admin and echoes it to the
// admin's connections.
func (r *Relay) SendFromAdmin(ctx context.Context, body string) (*models.ChatMessage, error) {
	return r.relay(ctx, r.adminUserID, body, models.ChatFromUser)
}

// Deliver records a system reply for userID and routes it to that user's
// connections. With nobody connected the message is only stored.
func (r *Relay) Deliver(ctx context.Context, userID, body string) (*models.ChatMessage, error) {
	return r.relay(ctx, userID, body, models.ChatFromSystem)
}

// History returns up to limit messages for userID, oldest first.
func (r *Relay) History(ctx context.Context, userID string, limit int) ([]*models.ChatMessage, error) {
	if err := validation.ValidateUserID(userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > constants.DefaultChatHistoryLimit {
		limit = constants.DefaultChatHistoryLimit
	}
	return r.store.ListChatMessages(ctx, userID, limit)
}

func (r *Relay) relay(ctx context.Context, userID, body string, direction models.ChatDirection) (*models.ChatMessage, error) {
	ctx, span := tracing.StartSpan(ctx, "chat.relay", attribute.String("chat.direction", string(direction)))
	defer span.End()

	if err := validation.ValidateUserID(userID); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	if err := validation.ValidateChatBody(body); err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	msg := &models.ChatMessage{
		UserID:    userID,
		Body:      body,
		Direction: direction,
		Timestamp: r.now(),
	}
	if err := r.store.InsertChatMessage(ctx, msg); err != nil {
		tracing.RecordError(ctx, err)
		r.errLogger.LogError(err, "Failed to store chat message", logrus.Fields{
			logfields.UserID:    privacy.MaskUserID(userID),
			logfields.Direction: direction,
		})
		return nil, err
	}
	r.metrics.ChatMessage(string(direction))

	delivered := 0
	if r.router != nil {
		delivered = r.router.RouteChatMessage(userID, body, direction)
	}
	tracing.AddSpanAttributes(ctx, attribute.Int("chat.delivered", delivered))

	r.logger.WithFields(logrus.Fields{
		logfields.UserID:    privacy.MaskUserID(userID),
		logfields.Direction: direction,
		logfields.Clients:   delivered,
	}).Info("Chat message relayed")
	return msg, nil
}
