package usecase

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"telegram-access-subscription/internal/clock"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/adapter"
	"telegram-access-subscription/internal/domain/ports/repository"
	"telegram-access-subscription/internal/infra/i18n"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ NotificationUseCase = (*notificationUC)(nil)

// StatusNotice is the kind of a lifecycle notice; it doubles as the catalogue key suffix.
type StatusNotice string

const (
	NoticeActivated StatusNotice = "activated"
	NoticeRenewed   StatusNotice = "renewed"
	NoticeExpired   StatusNotice = "expired"
	NoticeCancelled StatusNotice = "cancelled"
)

type NotificationUseCase interface {
	// NotifyStatusChange sends a lifecycle notice. Failures are logged only.
	NotifyStatusChange(ctx context.Context, sub *model.Subscription, kind StatusNotice)
	// Definitions returns the active expiring-soon definitions.
	Definitions(ctx context.Context) ([]*model.NotificationDefinition, error)
	// EmitExpiring claims the definition's dedup key for sub and, if this call
	// won the claim, sends the notice. It reports whether a message went out.
	EmitExpiring(ctx context.Context, sub *model.Subscription, def *model.NotificationDefinition) (bool, error)
	// CheckThresholds emits every definition whose window currently holds sub's end date.
	CheckThresholds(ctx context.Context, sub *model.Subscription) (int, error)
}

type notificationUC struct {
	defs       repository.NotificationDefinitionRepository
	actions    repository.ActionLogRepository
	users      repository.UserRepository
	tariffs    repository.TariffRepository
	bot        adapter.Notifier
	translator *i18n.Translator
	clock      clock.Clock
	dateFormat string
	log        *zerolog.Logger
}

func NewNotificationUseCase(
	defs repository.NotificationDefinitionRepository,
	actions repository.ActionLogRepository,
	users repository.UserRepository,
	tariffs repository.TariffRepository,
	bot adapter.Notifier,
	translator *i18n.Translator,
	clk clock.Clock,
	dateFormat string,
	logger *zerolog.Logger,
) *notificationUC {
	if dateFormat == "" {
		dateFormat = "2006-01-02"
	}
	l := logger.With().Str("component", "notifications").Logger()
	return &notificationUC{
		defs:       defs,
		actions:    actions,
		users:      users,
		tariffs:    tariffs,
		bot:        bot,
		translator: translator,
		clock:      clk,
		dateFormat: dateFormat,
		log:        &l,
	}
}

func (n *notificationUC) NotifyStatusChange(ctx context.Context, sub *model.Subscription, kind StatusNotice) {
	user, err := n.users.FindByID(ctx, repository.NoTX, sub.UserID)
	if err != nil {
		n.log.Warn().Err(err).Str("subscription_id", sub.ID).Str("notice", string(kind)).Msg("notice skipped: user lookup failed")
		return
	}
	text := n.translator.Render("subscription_"+string(kind), n.vars(ctx, sub, user))
	if err := n.bot.SendMessage(ctx, user.TelegramID, text); err != nil {
		n.log.Error().Err(err).Str("subscription_id", sub.ID).Str("notice", string(kind)).Msg("status notice failed")
	}
}

func (n *notificationUC) Definitions(ctx context.Context) ([]*model.NotificationDefinition, error) {
	return n.defs.ListActiveExpiryDefinitions(ctx, repository.NoTX)
}

func (n *notificationUC) EmitExpiring(ctx context.Context, sub *model.Subscription, def *model.NotificationDefinition) (bool, error) {
	user, err := n.users.FindByID(ctx, repository.NoTX, sub.UserID)
	if err != nil {
		return false, fmt.Errorf("load user %s: %w", sub.UserID, err)
	}
	now := n.clock.Now()
	details := map[string]any{
		"definition_id":      def.ID,
		"days_before_expiry": def.DaysBeforeExpiry,
	}
	if sub.EndDate != nil {
		details["end_date"] = sub.EndDate.Format(n.dateFormat)
	}
	claimed, err := n.actions.Claim(ctx, repository.NoTX, model.NewDedupEntry(sub.UserID, sub.ID, def.ActionKey, details, now))
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", def.ActionKey, err)
	}
	if !claimed {
		return false, nil
	}

	text := n.vars(ctx, sub, user).Render(def.Template, def.Variables)
	if err := n.bot.SendMessage(ctx, user.TelegramID, text); err != nil {
		// the claim stays; this notice is not retried
		subID := sub.ID
		entry := model.NewActionLogEntry(sub.UserID, &subID, model.ActionNotificationFailed, map[string]any{
			"action_key": def.ActionKey,
			"error":      err.Error(),
		}, now)
		if aerr := n.actions.Append(ctx, repository.NoTX, entry); aerr != nil {
			n.log.Error().Err(aerr).Str("subscription_id", sub.ID).Msg("failed to record notification failure")
		}
		n.log.Error().Err(err).Str("subscription_id", sub.ID).Str("action_key", def.ActionKey).Msg("expiring notice failed")
		return false, err
	}
	n.log.Info().Str("subscription_id", sub.ID).Str("action_key", def.ActionKey).Msg("expiring notice sent")
	return true, nil
}

func (n *notificationUC) CheckThresholds(ctx context.Context, sub *model.Subscription) (int, error) {
	if !sub.IsActive() || sub.EndDate == nil {
		return 0, nil
	}
	defs, err := n.Definitions(ctx)
	if err != nil {
		return 0, err
	}
	now := n.clock.Now()
	sent := 0
	for _, def := range defs {
		if !def.Matches(*sub.EndDate, now) {
			continue
		}
		ok, err := n.EmitExpiring(ctx, sub, def)
		if err != nil {
			n.log.Warn().Err(err).Str("subscription_id", sub.ID).Str("action_key", def.ActionKey).Msg("threshold check failed")
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

func (n *notificationUC) vars(ctx context.Context, sub *model.Subscription, user *model.User) model.TemplateVars {
	vars := model.TemplateVars{
		model.VarUsername:     user.Username,
		model.VarPeriodMonths: strconv.Itoa(sub.PeriodMonths),
		model.VarTariffName:   n.translator.T("tariff_unknown"),
	}
	if sub.EndDate != nil {
		vars[model.VarEndDate] = sub.EndDate.Format(n.dateFormat)
		days := math.Ceil(sub.EndDate.Sub(n.clock.Now()).Hours() / 24)
		if days < 0 {
			days = 0
		}
		vars[model.VarDaysLeft] = strconv.Itoa(int(days))
	}
	if sub.TariffID != nil {
		if t, err := n.tariffs.FindByID(ctx, repository.NoTX, *sub.TariffID); err == nil {
			vars[model.VarTariffName] = t.Name
		}
	}
	return vars
}
