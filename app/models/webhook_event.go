package models

import "time"

// Webhook event processing states. Transitions only move forward:
// processing -> succeeded or processing -> failed. Both end states are
// terminal; a failed event is only ever reprocessed after an operator
// removes the row out-of-band.
const (
	WebhookStatusProcessing = "processing"
	WebhookStatusSucceeded  = "succeeded"
	WebhookStatusFailed     = "failed"
)

// WebhookEvent stores one row per distinct Shopify delivery identity and is
// the deduplication ledger for idempotent processing.
type WebhookEvent struct {
	EventID      string    `gorm:"primaryKey;type:varchar(191)" json:"event_id"`
	Status       string    `gorm:"type:varchar(20);not null;index" json:"status"`
	Topic        string    `gorm:"type:varchar(100)" json:"topic"`
	ShopDomain   string    `gorm:"type:varchar(191)" json:"shop_domain"`
	OrderNumber  string    `gorm:"type:varchar(64);index" json:"order_number"`
	ResponseJSON string    `gorm:"type:text" json:"response_json"`
	LastError    string    `gorm:"type:text" json:"last_error"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
