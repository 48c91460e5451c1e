package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Action tags written to the action log.
const (
	ActionSubscriptionCreated = "subscription_created"
	ActionSubscriptionUpdated = "subscription_updated"
	ActionSubscriptionDeleted = "subscription_deleted"
	ActionAccessSynced        = "subscription_access_synced"
	ActionPaymentSuccess      = "payment_webhook_success"
	ActionPaymentFailed       = "payment_webhook_failed"
	ActionPaymentRefunded     = "payment_webhook_refunded"
	ActionNotificationFailed  = "notification_send_failed"
	ActionSubscriptionExpired = "subscription_expired_by_scheduler"
	ActionCheckoutCreated     = "checkout_created"
)

// ActionLogEntry is an append-only audit record. Entries carrying a DedupKey
// double as the "already sent" marker for once-only notifications.
type ActionLogEntry struct {
	ID             string
	UserID         string
	SubscriptionID *string
	Action         string
	Details        map[string]any
	DedupKey       *string
	CreatedAt      time.Time
}

// NewActionLogEntry builds an entry with a time-sortable id.
func NewActionLogEntry(userID string, subscriptionID *string, action string, details map[string]any, at time.Time) *ActionLogEntry {
	if details == nil {
		details = map[string]any{}
	}
	return &ActionLogEntry{
		ID:             ulid.MustNew(ulid.Timestamp(at), rand.Reader).String(),
		UserID:         userID,
		SubscriptionID: subscriptionID,
		Action:         action,
		Details:        details,
		CreatedAt:      at,
	}
}

// NewDedupEntry builds an entry whose action doubles as its dedup key.
func NewDedupEntry(userID, subscriptionID, action string, details map[string]any, at time.Time) *ActionLogEntry {
	e := NewActionLogEntry(userID, &subscriptionID, action, details, at)
	key := action
	e.DedupKey = &key
	return e
}
