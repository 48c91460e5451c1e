package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// validateStruct runs tag validation and reports the first failing field as ErrInvalidArgument.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %s", domain.ErrInvalidArgument, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
}

// ===== Payments =====

type paymentConfirmedRequest struct {
	TransactionID string          `json:"transaction_id" validate:"required,max=255"`
	Payload       json.RawMessage `json:"payload"`
}

type paymentEventRequest struct {
	Event         string          `json:"event" validate:"required,oneof=succeeded failed refunded"`
	TransactionID string          `json:"transaction_id" validate:"required,max=255"`
	Reason        string          `json:"reason" validate:"max=1000"`
	Payload       json.RawMessage `json:"payload"`
}

type paymentAck struct {
	OK      bool   `json:"ok"`
	Outcome string `json:"outcome"`
}

// ===== Subscriptions =====

type subscriptionCreateRequest struct {
	UserID       string     `json:"user_id" validate:"required"`
	TariffID     *string    `json:"tariff_id"`
	PeriodMonths int        `json:"period_months" validate:"min=1,max=120"`
	Amount       int64      `json:"amount" validate:"min=0"`
	Currency     string     `json:"currency" validate:"omitempty,len=3"`
	Status       string     `json:"status" validate:"omitempty,oneof=pending active expired cancelled"`
	StartDate    *time.Time `json:"start_date"`
	EndDate      *time.Time `json:"end_date"`
	IsFree       bool       `json:"is_free"`
	Notes        string     `json:"notes" validate:"max=2000"`
}

func (req subscriptionCreateRequest) input(actor string) model.NewSubscriptionInput {
	in := model.NewSubscriptionInput{
		UserID:       req.UserID,
		TariffID:     req.TariffID,
		PeriodMonths: req.PeriodMonths,
		Amount:       req.Amount,
		Currency:     req.Currency,
		Status:       model.SubscriptionStatus(req.Status),
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		IsFree:       req.IsFree,
		Notes:        req.Notes,
		Actor:        actor,
	}
	if in.Status == "" {
		in.Status = model.SubscriptionStatusPending
	}
	return in
}

type subscriptionUpdateRequest struct {
	Status    *string    `json:"status" validate:"omitempty,oneof=pending active expired cancelled"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	IsFree    *bool      `json:"is_free"`
	Notes     *string    `json:"notes" validate:"omitempty,max=2000"`
}

func (req subscriptionUpdateRequest) update(actor string) model.SubscriptionUpdate {
	upd := model.SubscriptionUpdate{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		IsFree:    req.IsFree,
		Notes:     req.Notes,
		Source:    model.SourceAdmin,
		Actor:     actor,
	}
	if req.Status != nil {
		st := model.SubscriptionStatus(*req.Status)
		upd.Status = &st
	}
	return upd
}

type subscriptionView struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id"`
	TariffID     *string           `json:"tariff_id,omitempty"`
	PeriodMonths int               `json:"period_months"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	StartDate    *time.Time        `json:"start_date,omitempty"`
	EndDate      *time.Time        `json:"end_date,omitempty"`
	Access       model.AccessFlags `json:"access"`
	IsFree       bool              `json:"is_free"`
	Notes        string            `json:"notes,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func toSubscriptionView(s *model.Subscription) subscriptionView {
	return subscriptionView{
		ID:           s.ID,
		UserID:       s.UserID,
		TariffID:     s.TariffID,
		PeriodMonths: s.PeriodMonths,
		Amount:       s.Amount,
		Currency:     s.Currency,
		Status:       string(s.Status),
		StartDate:    s.StartDate,
		EndDate:      s.EndDate,
		Access:       s.Access,
		IsFree:       s.IsFree,
		Notes:        s.Notes,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

type accessReportView struct {
	Operation string            `json:"operation"`
	Changed   []string          `json:"changed"`
	Skipped   []string          `json:"skipped"`
	Failures  map[string]string `json:"failures"`
}

func toAccessReportView(r model.AccessReport) accessReportView {
	v := accessReportView{
		Operation: string(r.Operation),
		Changed:   make([]string, 0, len(r.Changed)),
		Skipped:   make([]string, 0, len(r.Skipped)),
		Failures:  make(map[string]string, len(r.Failures)),
	}
	for _, s := range r.Changed {
		v.Changed = append(v.Changed, string(s))
	}
	for _, s := range r.Skipped {
		v.Skipped = append(v.Skipped, string(s))
	}
	for s, msg := range r.Failures {
		v.Failures[string(s)] = msg
	}
	return v
}

type actionView struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	DedupKey  *string        `json:"dedup_key,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ===== Promotions and checkout =====

type promoCheckRequest struct {
	Code         string `json:"code"`
	Username     string `json:"username"`
	Amount       int64  `json:"amount"`
	PeriodMonths int    `json:"period_months"`
	TariffID     string `json:"tariff_id"`
}

type promoCreateRequest struct {
	Code             string      `json:"code" validate:"required,max=64"`
	Type             string      `json:"type" validate:"required,oneof=mass personal"`
	DiscountType     string      `json:"discount_type" validate:"omitempty,oneof=percent fixed"`
	DiscountValue    int64       `json:"discount_value" validate:"min=0"`
	MaxUses          *int        `json:"max_uses" validate:"omitempty,min=1"`
	AllowedUsers     []string    `json:"allowed_users"`
	AllowedTariffs   []string    `json:"allowed_tariffs"`
	OverrideTariffID *string     `json:"override_tariff_id"`
	BonusDays        map[int]int `json:"bonus_days"`
	ValidFrom        *time.Time  `json:"valid_from"`
	ValidUntil       *time.Time  `json:"valid_until"`
	IsActive         *bool       `json:"is_active"`
}

func (req promoCreateRequest) promocode() *model.Promocode {
	p := &model.Promocode{
		Code:             req.Code,
		Type:             model.PromoType(req.Type),
		DiscountType:     model.DiscountType(req.DiscountType),
		DiscountValue:    req.DiscountValue,
		MaxUses:          req.MaxUses,
		AllowedUsers:     req.AllowedUsers,
		AllowedTariffs:   req.AllowedTariffs,
		OverrideTariffID: req.OverrideTariffID,
		BonusDays:        req.BonusDays,
		ValidFrom:        req.ValidFrom,
		ValidUntil:       req.ValidUntil,
		IsActive:         true,
	}
	if p.DiscountType == "" {
		p.DiscountType = model.DiscountPercent
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	return p
}

type checkoutRequest struct {
	UserID       string `json:"user_id" validate:"required"`
	TariffID     string `json:"tariff_id" validate:"required"`
	PeriodMonths int    `json:"period_months" validate:"min=1,max=120"`
	PromoCode    string `json:"promo_code" validate:"max=64"`
}

type checkoutResponse struct {
	Subscription  subscriptionView  `json:"subscription"`
	PaymentID     string            `json:"payment_id"`
	TransactionID string            `json:"transaction_id"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Quote         *model.PromoQuote `json:"quote,omitempty"`
}
