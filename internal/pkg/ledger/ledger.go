package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ordersync/shopify-fishbowl-bridge/app/models"
)

// Errors truncated beyond this length are of no diagnostic value and only
// bloat the ledger.
const maxErrorLength = 4000

// ReserveInput describes one delivery attempting to claim its event identity.
type ReserveInput struct {
	EventID     string
	Topic       string
	ShopDomain  string
	OrderNumber string
}

// Reservation is the outcome of a Reserve call. When Reserved is false,
// Existing carries the stored row, including the cached outcome for replays.
type Reservation struct {
	Reserved bool
	Existing *models.WebhookEvent
}

// Store is the idempotency ledger. Reserve is the single synchronization
// point for concurrent deliveries of the same event identity.
type Store interface {
	Reserve(ctx context.Context, in ReserveInput) (*Reservation, error)
	MarkSucceeded(ctx context.Context, eventID, responseJSON string) error
	MarkFailed(ctx context.Context, eventID, errorMessage string) error
	Get(ctx context.Context, eventID string) (*models.WebhookEvent, error)
}

type gormStore struct {
	db *gorm.DB
}

// New creates a ledger backed by GORM.
func New(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// Reserve atomically inserts a processing row for the event identity. The
// insert itself decides the race: a conflicting concurrent or repeated
// delivery hits the primary key and affects zero rows. There is no
// check-then-insert window, so the guarantee holds across processes sharing
// the ledger file.
func (s *gormStore) Reserve(ctx context.Context, in ReserveInput) (*Reservation, error) {
	event := &models.WebhookEvent{
		EventID:     in.EventID,
		Status:      models.WebhookStatusProcessing,
		Topic:       in.Topic,
		ShopDomain:  in.ShopDomain,
		OrderNumber: in.OrderNumber,
	}

	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return nil, tx.Error
	}

	if tx.RowsAffected > 0 {
		return &Reservation{Reserved: true}, nil
	}

	existing, err := s.Get(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	return &Reservation{Reserved: false, Existing: existing}, nil
}

// MarkSucceeded transitions processing -> succeeded and caches the outcome
// returned to duplicate replays. Rows already in a terminal state are left
// untouched.
func (s *gormStore) MarkSucceeded(ctx context.Context, eventID, responseJSON string) error {
	return s.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("event_id = ? AND status = ?", eventID, models.WebhookStatusProcessing).
		Updates(map[string]interface{}{
			"status":        models.WebhookStatusSucceeded,
			"response_json": responseJSON,
			"updated_at":    time.Now(),
		}).Error
}

// MarkFailed transitions processing -> failed. The failure is terminal; a
// redelivery after failure is deduplicated like any other replay.
func (s *gormStore) MarkFailed(ctx context.Context, eventID, errorMessage string) error {
	if errorMessage == "" {
		errorMessage = "Unknown error"
	}
	if len(errorMessage) > maxErrorLength {
		errorMessage = errorMessage[:maxErrorLength]
	}
	return s.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("event_id = ? AND status = ?", eventID, models.WebhookStatusProcessing).
		Updates(map[string]interface{}{
			"status":     models.WebhookStatusFailed,
			"last_error": errorMessage,
			"updated_at": time.Now(),
		}).Error
}

// Get returns the stored row for an event identity, or nil when absent.
func (s *gormStore) Get(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}
