package usecase

import (
	"context"
	"errors"

	"telegram-access-subscription/internal/clock"
	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
	ucport "telegram-access-subscription/internal/domain/ports/usecase"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PricingUseCase resolves promo codes into quotes and manages the codes.
// Resolve never writes; usage counters are owned by the purchase flow.
type PricingUseCase interface {
	ucport.PromoResolver
}

var _ PricingUseCase = (*pricingUC)(nil)

type pricingUC struct {
	promos  repository.PromocodeRepository
	tariffs repository.TariffRepository
	clock   clock.Clock
	log     *zerolog.Logger
}

func NewPricingUseCase(
	promos repository.PromocodeRepository,
	tariffs repository.TariffRepository,
	clk clock.Clock,
	logger *zerolog.Logger,
) PricingUseCase {
	l := logger.With().Str("component", "pricing").Logger()
	return &pricingUC{promos: promos, tariffs: tariffs, clock: clk, log: &l}
}

// Resolve evaluates a code against a checkout. Rule violations come back as an
// invalid quote; only storage failures are returned as errors.
func (p *pricingUC) Resolve(ctx context.Context, req model.PromoRequest) (*model.PromoQuote, error) {
	code := model.NormalizeCode(req.Code)
	if code == "" || req.Amount < 0 || req.PeriodMonths <= 0 {
		return model.Rejected(model.PromoReasonInvalidRequest, req.Amount), nil
	}
	promo, err := p.promos.FindByCode(ctx, repository.NoTX, code)
	if errors.Is(err, domain.ErrNotFound) {
		return model.Rejected(model.PromoReasonUnknown, req.Amount), nil
	}
	if err != nil {
		return nil, err
	}

	now := p.clock.Now()
	switch {
	case !promo.IsActive:
		return model.Rejected(model.PromoReasonInactive, req.Amount), nil
	case !promo.InWindow(now):
		return model.Rejected(model.PromoReasonOutsideWindow, req.Amount), nil
	case promo.Exhausted():
		return model.Rejected(model.PromoReasonExhausted, req.Amount), nil
	case promo.Type == model.PromoTypePersonal && !promo.AllowsUser(req.Username):
		return model.Rejected(model.PromoReasonUserNotAllowed, req.Amount), nil
	}

	quote := &model.PromoQuote{Valid: true, Code: code, BaseAmount: req.Amount}
	if promo.OverrideTariffID != nil {
		t, err := p.tariffs.FindByID(ctx, repository.NoTX, *promo.OverrideTariffID)
		if errors.Is(err, domain.ErrNotFound) || (err == nil && !t.IsActive) {
			return model.Rejected(model.PromoReasonOverrideMissing, req.Amount), nil
		}
		if err != nil {
			return nil, err
		}
		price, ok := t.PriceFor(req.PeriodMonths)
		if !ok {
			return model.Rejected(model.PromoReasonPeriodMissing, req.Amount), nil
		}
		quote.BaseAmount = price.Amount
		quote.Currency = price.Currency
		quote.OverrideTariffID = t.ID
		quote.OverrideTariffName = t.Name
		quote.OverridePlanLabel = t.PlanLabel(req.PeriodMonths)
	} else {
		if !promo.AllowsTariff(req.TariffID) {
			return model.Rejected(model.PromoReasonTariffNotAllowed, req.Amount), nil
		}
		if req.TariffID != "" {
			if t, err := p.tariffs.FindByID(ctx, repository.NoTX, req.TariffID); err == nil {
				if price, ok := t.PriceFor(req.PeriodMonths); ok {
					quote.Currency = price.Currency
				}
			}
		}
	}

	quote.DiscountAmount = promo.Discount(quote.BaseAmount)
	quote.FinalAmount = quote.BaseAmount - quote.DiscountAmount
	quote.ExtraDays = promo.ExtraDays(req.PeriodMonths)
	return quote, nil
}

// CreatePromocode validates and stores a new code.
// Returns domain.ErrAlreadyExists if the code is taken.
func (p *pricingUC) CreatePromocode(ctx context.Context, promo *model.Promocode) error {
	promo.Code = model.NormalizeCode(promo.Code)
	if err := promo.Validate(); err != nil {
		return err
	}
	if promo.ID == "" {
		promo.ID = uuid.NewString()
	}
	promo.CreatedAt = p.clock.Now()
	if err := p.promos.Create(ctx, repository.NoTX, promo); err != nil {
		return err
	}
	p.log.Info().Str("code", promo.Code).Str("type", string(promo.Type)).Msg("promo code created")
	return nil
}
