package model

import "time"

// Source identifies who initiated a lifecycle change.
type Source string

const (
	SourceAdmin     Source = "admin"
	SourcePayment   Source = "payment"
	SourceRefund    Source = "refund"
	SourceScheduler Source = "scheduler"
)

// SubscriptionUpdate is a partial change requested for a subscription; nil
// fields are left untouched.
type SubscriptionUpdate struct {
	Status    *SubscriptionStatus
	StartDate *time.Time
	EndDate   *time.Time
	Notes     *string
	IsFree    *bool
	Source    Source
	Actor     string
	// Action overrides the action-log tag (default subscription_updated).
	Action string
	// Extra is merged into the action-log details.
	Extra map[string]any
}

// NewSubscriptionInput is an admin request to create a subscription directly.
type NewSubscriptionInput struct {
	UserID       string
	TariffID     *string
	PeriodMonths int
	Amount       int64
	Currency     string
	Status       SubscriptionStatus
	StartDate    *time.Time
	EndDate      *time.Time
	IsFree       bool
	Notes        string
	Actor        string
}

type AccessOperation string

const (
	AccessGrant  AccessOperation = "grant"
	AccessRevoke AccessOperation = "revoke"
)

// AccessReport summarises one orchestration run across all systems.
type AccessReport struct {
	Operation AccessOperation
	Changed   []AccessSystem
	Skipped   []AccessSystem // already in the target state
	Failures  map[AccessSystem]string
}

func (r AccessReport) OK() bool { return len(r.Failures) == 0 }

// Details renders the report for the action log.
func (r AccessReport) Details() map[string]any {
	failures := make(map[string]string, len(r.Failures))
	for sys, msg := range r.Failures {
		failures[string(sys)] = msg
	}
	changed := make([]string, 0, len(r.Changed))
	for _, sys := range r.Changed {
		changed = append(changed, string(sys))
	}
	return map[string]any{
		"operation": string(r.Operation),
		"changed":   changed,
		"failures":  failures,
	}
}

// PassReport counts what one reconciler pass did.
type PassReport struct {
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	Expired          int           `json:"expired"`
	Notified         int           `json:"notified"`
	NotifyFailed     int           `json:"notify_failed"`
	AccessReconciled int           `json:"access_reconciled"`
	StatesPurged     int64         `json:"states_purged"`
	Errors           int           `json:"errors"`
}

// CheckoutRequest starts a purchase of a tariff for a period.
type CheckoutRequest struct {
	UserID       string
	TariffID     string
	PeriodMonths int
	PromoCode    string
}

// CheckoutResult is the pending subscription and payment created by a checkout.
type CheckoutResult struct {
	Subscription *Subscription
	Payment      *Payment
	Quote        *PromoQuote
}
