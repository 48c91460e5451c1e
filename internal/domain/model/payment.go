package model

import (
	"encoding/json"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"   // checkout created; awaiting provider confirmation
	PaymentStatusCompleted PaymentStatus = "completed" // confirmed by webhook; activation side effects ran
	PaymentStatusFailed    PaymentStatus = "failed"    // provider reported failure
	PaymentStatusRefunded  PaymentStatus = "refunded"  // money returned; subscription cancelled
	PaymentStatusCancelled PaymentStatus = "cancelled" // abandoned by user/admin
)

// Payment records one attempt to pay for a Subscription.
type Payment struct {
	ID             string
	SubscriptionID string
	UserID         string
	Amount         int64 // minor units
	Currency       string
	Status         PaymentStatus
	ExternalID     string // provider transaction id; unique, used to de-duplicate webhooks
	PromoCode      string
	BonusDays      int // promo bonus days added on activation
	CreatedAt      time.Time
	CompletedAt    *time.Time
	ErrorMessage   string
	Payload        json.RawMessage // last raw webhook body
}

// PaymentOutcome describes what the intake did with one inbound delivery.
type PaymentOutcome string

const (
	PaymentOutcomeProcessed PaymentOutcome = "processed"
	PaymentOutcomeDuplicate PaymentOutcome = "duplicate"
	PaymentOutcomeIgnored   PaymentOutcome = "ignored"
)
