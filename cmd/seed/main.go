package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"telegram-access-subscription/internal/clock"
	"telegram-access-subscription/internal/config"
	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/repository"
	pg "telegram-access-subscription/internal/infra/db/postgres"
	"telegram-access-subscription/internal/infra/logging"
	"telegram-access-subscription/internal/usecase"
)

// Seeds the catalogue a fresh install needs. Rows use stable ids so reruns are no-ops.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	if err := pg.MigrateUp(pool); err != nil {
		logger.Fatal().Err(err).Msg("migrate")
	}

	tariffs := pg.NewTariffRepo(pool)
	for _, t := range seedTariffs() {
		if err := tariffs.Save(ctx, repository.NoTX, t); err != nil {
			logger.Fatal().Err(err).Str("tariff", t.Name).Msg("seed tariff")
		}
		fmt.Printf("tariff: %s (id=%s, %d prices)\n", t.Name, t.ID, len(t.Prices))
	}

	defs := pg.NewNotificationDefinitionRepo(pool)
	for _, d := range seedDefinitions() {
		if err := defs.Save(ctx, repository.NoTX, d); err != nil {
			logger.Fatal().Err(err).Str("action_key", d.ActionKey).Msg("seed notification definition")
		}
		fmt.Printf("notification: %s (%d days before expiry)\n", d.ActionKey, d.DaysBeforeExpiry)
	}

	pricing := usecase.NewPricingUseCase(pg.NewPromocodeRepo(pool), tariffs, clock.System(), logger)
	promo := &model.Promocode{
		ID:               "promo-welcome",
		Code:             "WELCOME",
		Type:             model.PromoTypeMass,
		DiscountType:     model.DiscountPercent,
		OverrideTariffID: strPtr("tariff-premium"),
		BonusDays:        map[int]int{12: 14},
		IsActive:         true,
	}
	switch err := pricing.CreatePromocode(ctx, promo); {
	case errors.Is(err, domain.ErrAlreadyExists):
		fmt.Printf("promo: %s already present\n", promo.Code)
	case err != nil:
		logger.Fatal().Err(err).Msg("seed promo code")
	default:
		fmt.Printf("promo: %s -> tariff-premium, +14 days on 12 months\n", promo.Code)
	}

	fmt.Println("Seeding complete.")
}

func seedTariffs() []*model.Tariff {
	now := time.Now().UTC()
	return []*model.Tariff{
		{
			ID: "tariff-basic", Name: "Basic", IsActive: true, CreatedAt: now,
			Prices: []model.TariffPrice{
				{ID: "price-basic-1", PeriodMonths: 1, Amount: 49_000, Currency: "RUB"},
				{ID: "price-basic-3", PeriodMonths: 3, Amount: 129_000, Currency: "RUB"},
				{ID: "price-basic-12", PeriodMonths: 12, Amount: 449_000, Currency: "RUB"},
			},
		},
		{
			ID: "tariff-premium", Name: "Premium", IsActive: true, CreatedAt: now,
			Prices: []model.TariffPrice{
				{ID: "price-premium-1", PeriodMonths: 1, Amount: 99_000, Currency: "RUB"},
				{ID: "price-premium-3", PeriodMonths: 3, Amount: 269_000, Currency: "RUB"},
				{ID: "price-premium-12", PeriodMonths: 12, Amount: 899_000, Currency: "RUB"},
			},
		},
	}
}

func seedDefinitions() []*model.NotificationDefinition {
	vars := []model.TemplateVar{model.VarUsername, model.VarTariffName, model.VarEndDate, model.VarDaysLeft}
	return []*model.NotificationDefinition{
		{
			ID:               "notify-expiring-7",
			ActionKey:        "subscription_expiring_7_days_sent",
			DaysBeforeExpiry: 7,
			Template:         "Hi {{username}}! Your {{tariffName}} subscription ends on {{endDate}} ({{daysLeft}} days left).",
			Variables:        vars,
			IsActive:         true,
		},
		{
			ID:               "notify-expiring-3",
			ActionKey:        "subscription_expiring_3_days_sent",
			DaysBeforeExpiry: 3,
			Template:         "{{username}}, only {{daysLeft}} days of {{tariffName}} left. Renew before {{endDate}} to keep your access.",
			Variables:        vars,
			IsActive:         true,
		},
		{
			ID:               "notify-expiring-1",
			ActionKey:        "subscription_expiring_1_days_sent",
			DaysBeforeExpiry: 1,
			Template:         "{{username}}, your {{tariffName}} access ends tomorrow ({{endDate}}).",
			Variables:        vars,
			IsActive:         true,
		},
	}
}

func strPtr(s string) *string { return &s }
