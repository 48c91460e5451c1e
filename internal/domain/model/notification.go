package model

import (
	"time"

	"telegram-access-subscription/internal/domain"
)

// NotificationDefinition configures one "expiring soon" notice.
type NotificationDefinition struct {
	ID               string
	ActionKey        string // dedup tag, e.g. subscription_expiring_3_days_sent
	DaysBeforeExpiry int
	Template         string
	Variables        []TemplateVar
	IsActive         bool
}

// Validate checks a definition before it is stored.
func (d *NotificationDefinition) Validate() error {
	if d.ActionKey == "" || d.DaysBeforeExpiry < 1 || d.Template == "" {
		return domain.ErrInvalidArgument
	}
	for _, v := range d.Variables {
		if !v.Known() {
			return domain.ErrInvalidArgument
		}
	}
	return nil
}

// Window returns the (from, to] range of end dates the definition targets:
// a subscription qualifies when its end date is within N days but not within N-1.
func (d *NotificationDefinition) Window(now time.Time) (from, to time.Time) {
	n := d.DaysBeforeExpiry
	return now.AddDate(0, 0, n-1), now.AddDate(0, 0, n)
}

// Matches reports whether an end date falls inside the definition's window.
func (d *NotificationDefinition) Matches(end, now time.Time) bool {
	from, to := d.Window(now)
	return end.After(from) && !end.After(to)
}
