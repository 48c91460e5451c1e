package adapter

import (
	"context"

	"telegram-access-subscription/internal/domain/model"
)

// AccessProvider mirrors an entitlement into one external identity system.
// Grant and Revoke must be idempotent on the remote side: granting an already
// granted identity, or revoking an absent one, is a success.
type AccessProvider interface {
	System() model.AccessSystem
	Grant(ctx context.Context, identity string) error
	Revoke(ctx context.Context, identity string) error
}

// AccessChecker is implemented by providers that can report the remote state.
type AccessChecker interface {
	Check(ctx context.Context, identity string) (bool, error)
}
