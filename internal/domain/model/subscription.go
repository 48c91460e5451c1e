package model

import (
	"time"

	"telegram-access-subscription/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

const (
	MinPeriodMonths = 1
	MaxPeriodMonths = 120
)

// ParseSubscriptionStatus validates a raw status string.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	switch st := SubscriptionStatus(s); st {
	case SubscriptionStatusPending, SubscriptionStatusActive, SubscriptionStatusExpired, SubscriptionStatusCancelled:
		return st, nil
	}
	return "", domain.ErrInvalidArgument
}

// CanTransition reports whether a subscription may move from one status to another.
// Same-status moves are always allowed (field edits, extensions).
func CanTransition(from, to SubscriptionStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case SubscriptionStatusPending:
		return to == SubscriptionStatusActive || to == SubscriptionStatusCancelled
	case SubscriptionStatusActive:
		return to == SubscriptionStatusExpired || to == SubscriptionStatusCancelled
	case SubscriptionStatusExpired, SubscriptionStatusCancelled:
		return to == SubscriptionStatusActive
	}
	return false
}

// ClampPeriodMonths bounds a period to the 1..120 month range.
func ClampPeriodMonths(months int) int {
	if months < MinPeriodMonths {
		return MinPeriodMonths
	}
	if months > MaxPeriodMonths {
		return MaxPeriodMonths
	}
	return months
}

// Subscription is one purchased, time-boxed access entitlement.
type Subscription struct {
	ID           string
	UserID       string
	TariffID     *string // nil for legacy free-form subscriptions
	PricePlanID  *string
	PeriodMonths int
	Amount       int64 // minor units
	Currency     string
	Status       SubscriptionStatus
	StartDate    *time.Time
	EndDate      *time.Time
	Access       AccessFlags
	IsFree       bool
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s *Subscription) IsActive() bool { return s != nil && s.Status == SubscriptionStatusActive }

// IsOverdue reports whether an active subscription's end date has been reached.
func (s *Subscription) IsOverdue(now time.Time) bool {
	return s.IsActive() && s.EndDate != nil && !s.EndDate.After(now)
}

// DefaultEndDate is start + period, using the clamped period length.
func (s *Subscription) DefaultEndDate(start time.Time) time.Time {
	return start.AddDate(0, ClampPeriodMonths(s.PeriodMonths), 0)
}

// NewSubscription validates and constructs a subscription in the given status.
func NewSubscription(id, userID string, periodMonths int, amount int64, currency string, status SubscriptionStatus) (*Subscription, error) {
	if id == "" || userID == "" || amount < 0 {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := ParseSubscriptionStatus(string(status)); err != nil {
		return nil, err
	}
	now := time.Now()
	return &Subscription{
		ID:           id,
		UserID:       userID,
		PeriodMonths: ClampPeriodMonths(periodMonths),
		Amount:       amount,
		Currency:     currency,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}
