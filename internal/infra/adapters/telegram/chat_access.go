package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-access-subscription/internal/domain"
	"telegram-access-subscription/internal/domain/model"
	"telegram-access-subscription/internal/domain/ports/adapter"
)

var (
	_ adapter.AccessProvider = (*ChatAccess)(nil)
	_ adapter.AccessChecker  = (*ChatAccess)(nil)
)

const inviteTTL = 24 * time.Hour

// ChatAccess manages membership of the paid community chat. The identity is
// the member's Telegram user id.
type ChatAccess struct {
	bot    botAPI
	chatID int64
	now    func() time.Time
}

func NewChatAccess(bot botAPI, chatID int64) *ChatAccess {
	return &ChatAccess{bot: bot, chatID: chatID, now: time.Now}
}

func (c *ChatAccess) System() model.AccessSystem { return model.AccessCommunityChat }

// Grant lifts any earlier ban and sends the member a single-use invite link.
func (c *ChatAccess) Grant(ctx context.Context, identity string) error {
	userID, err := c.member(identity)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	unban := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: c.chatID, UserID: userID},
		OnlyIfBanned:     true,
	}
	if _, err := c.bot.Request(unban); err != nil {
		return fmt.Errorf("unban %d: %w", userID, err)
	}

	resp, err := c.bot.Request(tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: c.chatID},
		Name:        "subscription " + identity,
		ExpireDate:  int(c.now().Add(inviteTTL).Unix()),
		MemberLimit: 1,
	})
	if err != nil {
		return fmt.Errorf("create invite link: %w", err)
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil || link.InviteLink == "" {
		return fmt.Errorf("decode invite link: %w", domain.ErrProviderFailed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.bot.Send(tgbotapi.NewMessage(userID, link.InviteLink)); err != nil {
		return fmt.Errorf("deliver invite link: %w", err)
	}
	return nil
}

// Revoke removes the member and immediately lifts the ban so a later
// purchase can invite them again.
func (c *ChatAccess) Revoke(ctx context.Context, identity string) error {
	userID, err := c.member(identity)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	member := tgbotapi.ChatMemberConfig{ChatID: c.chatID, UserID: userID}
	if _, err := c.bot.Request(tgbotapi.BanChatMemberConfig{ChatMemberConfig: member}); err != nil {
		return fmt.Errorf("remove %d: %w", userID, err)
	}
	if _, err := c.bot.Request(tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: member, OnlyIfBanned: true}); err != nil {
		return fmt.Errorf("lift ban %d: %w", userID, err)
	}
	return nil
}

func (c *ChatAccess) Check(ctx context.Context, identity string) (bool, error) {
	userID, err := c.member(identity)
	if err != nil {
		return false, err
	}
	m, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: c.chatID, UserID: userID},
	})
	if err != nil {
		return false, err
	}
	switch m.Status {
	case "creator", "administrator", "member":
		return true, nil
	case "restricted":
		return m.IsMember, nil
	}
	return false, nil
}

func (c *ChatAccess) member(identity string) (int64, error) {
	if c.chatID == 0 {
		return 0, domain.ErrNotConfigured
	}
	id, err := strconv.ParseInt(identity, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: chat identity %q", domain.ErrIdentityMissing, identity)
	}
	return id, nil
}
