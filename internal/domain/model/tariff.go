package model

import (
	"fmt"
	"time"

	"telegram-access-subscription/internal/domain"
)

// TariffPrice is the price of a tariff for one period length.
type TariffPrice struct {
	ID           string `json:"id"`
	PeriodMonths int    `json:"period_months"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// Tariff is a purchasable access package with per-period prices.
type Tariff struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	IsActive  bool          `json:"is_active"`
	Prices    []TariffPrice `json:"prices"`
	CreatedAt time.Time     `json:"created_at"`
}

// PriceFor returns the price row for an exact period length.
func (t *Tariff) PriceFor(periodMonths int) (*TariffPrice, bool) {
	if t == nil {
		return nil, false
	}
	for i := range t.Prices {
		if t.Prices[i].PeriodMonths == periodMonths {
			return &t.Prices[i], true
		}
	}
	return nil, false
}

// PlanLabel renders a human-readable plan name such as "Premium · 3 months".
func (t *Tariff) PlanLabel(periodMonths int) string {
	unit := "months"
	if periodMonths == 1 {
		unit = "month"
	}
	return fmt.Sprintf("%s · %d %s", t.Name, periodMonths, unit)
}

// NewTariff validates and constructs a tariff.
func NewTariff(id, name string, prices []TariffPrice) (*Tariff, error) {
	if id == "" || name == "" || len(prices) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	seen := map[int]bool{}
	for _, p := range prices {
		if p.PeriodMonths <= 0 || p.Amount < 0 || seen[p.PeriodMonths] {
			return nil, domain.ErrInvalidArgument
		}
		seen[p.PeriodMonths] = true
	}
	return &Tariff{ID: id, Name: name, IsActive: true, Prices: prices, CreatedAt: time.Now()}, nil
}
