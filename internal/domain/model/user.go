package model

import (
	"strconv"
	"time"

	"telegram-access-subscription/internal/domain"

	"github.com/google/uuid"
)

// User is the owner of subscriptions together with the identities already
// linked for each external system.
type User struct {
	ID                 string
	TelegramID         int64
	Username           string
	KnowledgeBaseEmail string
	StorageAccount     string
	RegisteredAt       time.Time
}

func NewUser(id string, tgID int64, username string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &User{
		ID:           id,
		TelegramID:   tgID,
		Username:     username,
		RegisteredAt: time.Now(),
	}, nil
}

// IdentityFor returns the identity a system grants access to, or "" when the
// user has not linked one.
func (u *User) IdentityFor(sys AccessSystem) string {
	if u == nil {
		return ""
	}
	switch sys {
	case AccessCommunityChat:
		if u.TelegramID > 0 {
			return strconv.FormatInt(u.TelegramID, 10)
		}
	case AccessKnowledgeBase:
		return u.KnowledgeBaseEmail
	case AccessFileStorage:
		return u.StorageAccount
	}
	return ""
}
