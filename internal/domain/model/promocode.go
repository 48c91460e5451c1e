package model

import (
	"strings"
	"time"

	"telegram-access-subscription/internal/domain"
)

type PromoType string

const (
	PromoTypeMass     PromoType = "mass"
	PromoTypePersonal PromoType = "personal"
)

type DiscountType string

const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// Promocode is an admin-defined discount or tariff override rule.
type Promocode struct {
	ID               string
	Code             string
	Type             PromoType
	DiscountType     DiscountType
	DiscountValue    int64 // whole percent, or minor units for fixed
	MaxUses          *int
	UsedCount        int
	AllowedUsers     []string // handles; required for personal codes
	AllowedTariffs   []string // ignored when OverrideTariffID is set
	OverrideTariffID *string
	BonusDays        map[int]int // period months -> extra days
	ValidFrom        *time.Time
	ValidUntil       *time.Time
	IsActive         bool
	CreatedAt        time.Time
}

// NormalizeCode is the case-insensitive lookup form of a code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// NormalizeHandle lowercases a chat handle and strips a leading '@'.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

// Validate checks the admin-side invariants of a code.
func (p *Promocode) Validate() error {
	if NormalizeCode(p.Code) == "" {
		return domain.ErrInvalidArgument
	}
	switch p.Type {
	case PromoTypeMass:
	case PromoTypePersonal:
		if len(p.AllowedUsers) == 0 {
			return domain.ErrInvalidArgument
		}
	default:
		return domain.ErrInvalidArgument
	}
	switch p.DiscountType {
	case DiscountPercent:
		if p.DiscountValue < 0 || p.DiscountValue > 100 {
			return domain.ErrInvalidArgument
		}
	case DiscountFixed:
		if p.DiscountValue < 0 {
			return domain.ErrInvalidArgument
		}
	default:
		return domain.ErrInvalidArgument
	}
	if p.MaxUses != nil && *p.MaxUses < 0 {
		return domain.ErrInvalidArgument
	}
	if p.ValidFrom != nil && p.ValidUntil != nil && p.ValidUntil.Before(*p.ValidFrom) {
		return domain.ErrInvalidArgument
	}
	for months, days := range p.BonusDays {
		if months <= 0 || days < 0 {
			return domain.ErrInvalidArgument
		}
	}
	return nil
}

// InWindow reports whether now falls inside the optional active window.
func (p *Promocode) InWindow(now time.Time) bool {
	if p.ValidFrom != nil && now.Before(*p.ValidFrom) {
		return false
	}
	if p.ValidUntil != nil && now.After(*p.ValidUntil) {
		return false
	}
	return true
}

func (p *Promocode) Exhausted() bool {
	return p.MaxUses != nil && *p.MaxUses > 0 && p.UsedCount >= *p.MaxUses
}

// AllowsUser matches a handle against the allow-list, ignoring case and a leading '@'.
func (p *Promocode) AllowsUser(handle string) bool {
	h := NormalizeHandle(handle)
	if h == "" {
		return false
	}
	for _, u := range p.AllowedUsers {
		if NormalizeHandle(u) == h {
			return true
		}
	}
	return false
}

func (p *Promocode) AllowsTariff(tariffID string) bool {
	if len(p.AllowedTariffs) == 0 {
		return true
	}
	for _, t := range p.AllowedTariffs {
		if t == tariffID {
			return true
		}
	}
	return false
}

// Discount computes the discount for a base amount, never exceeding it.
// Percent discounts round half up in minor units.
func (p *Promocode) Discount(base int64) int64 {
	if base <= 0 {
		return 0
	}
	var d int64
	switch p.DiscountType {
	case DiscountPercent:
		d = (base*p.DiscountValue + 50) / 100
	case DiscountFixed:
		d = p.DiscountValue
	}
	if d > base {
		d = base
	}
	if d < 0 {
		d = 0
	}
	return d
}

// ExtraDays looks up the bonus for an exact period length.
func (p *Promocode) ExtraDays(periodMonths int) int {
	if p.BonusDays == nil {
		return 0
	}
	return p.BonusDays[periodMonths]
}

// Promo rejection reasons returned to the caller of a code check.
const (
	PromoReasonUnknown          = "unknown_code"
	PromoReasonInactive         = "inactive"
	PromoReasonOutsideWindow    = "outside_active_window"
	PromoReasonExhausted        = "usage_limit_reached"
	PromoReasonUserNotAllowed   = "user_not_allowed"
	PromoReasonTariffNotAllowed = "tariff_not_allowed"
	PromoReasonPeriodMissing    = "override_period_unavailable"
	PromoReasonOverrideMissing  = "override_tariff_unavailable"
	PromoReasonInvalidRequest   = "invalid_request"
)

// PromoRequest is the input of a promo code check.
type PromoRequest struct {
	Code         string
	Username     string
	Amount       int64
	PeriodMonths int
	TariffID     string
}

// PromoQuote is the outcome of resolving a promo code against a checkout.
type PromoQuote struct {
	Valid              bool   `json:"valid"`
	Reason             string `json:"reason,omitempty"`
	Code               string `json:"code,omitempty"`
	BaseAmount         int64  `json:"base_amount"`
	FinalAmount        int64  `json:"final_amount"`
	DiscountAmount     int64  `json:"discount_amount"`
	ExtraDays          int    `json:"extra_days"`
	Currency           string `json:"currency,omitempty"`
	OverrideTariffID   string `json:"override_tariff_id,omitempty"`
	OverrideTariffName string `json:"override_tariff_name,omitempty"`
	OverridePlanLabel  string `json:"override_plan_label,omitempty"`
}

// Rejected builds an invalid quote that echoes the caller's amount.
func Rejected(reason string, amount int64) *PromoQuote {
	return &PromoQuote{Valid: false, Reason: reason, BaseAmount: amount, FinalAmount: amount}
}
