package chat

import (
	"context"
	"errors"

	"parley.chat/internal/auth"
)

// Gate decides whether a principal may read or send in a chat. It reads the
// current storage state on every call; membership changes take effect on the
// next authorization check, with no caching in between.
type Gate struct {
	store Store
}

// NewGate constructs a membership gate over the given store.
func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

// Authorize returns nil when the principal may access the chat. Admins pass
// without an explicit membership row. The deny reasons stay distinct:
// ErrChatNotFound when the id does not resolve, ErrNotAMember when the chat
// exists but no membership row does.
func (g *Gate) Authorize(ctx context.Context, principal auth.Principal, chatID string) error {
	if _, err := g.store.GetChatByID(ctx, chatID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrChatNotFound
		}
		return err
	}
	if principal.IsAdmin() {
		return nil
	}
	ok, err := g.store.IsMember(ctx, principal.UserID, chatID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAMember
	}
	return nil
}
