package chat

import (
	"context"
	"strings"

	"parley.chat/internal/auth"
	"parley.chat/internal/ids"
)

// Broadcaster fans a persisted message out to the chat's live subscribers.
// Implementations must never fail the caller: delivery is best effort per
// subscriber.
type Broadcaster interface {
	Publish(chatID string, msg Message)
}

// Service is the operation layer shared by the HTTP and WebSocket transports.
// Both go through the same Gate and Broadcaster, so there is exactly one
// authorization and fan-out contract.
type Service struct {
	store      Store
	gate       *Gate
	broadcast  Broadcaster
	maxContent int
}

// NewService wires the chat service. maxContent bounds message content in
// bytes; zero or negative disables the bound.
func NewService(store Store, gate *Gate, broadcast Broadcaster, maxContent int) *Service {
	return &Service{store: store, gate: gate, broadcast: broadcast, maxContent: maxContent}
}

// Gate exposes the membership gate so the socket handler can authorize before
// subscribing.
func (s *Service) Gate() *Gate { return s.gate }

// Resolve looks a chat up by name, for the socket endpoint keyed by chat name.
func (s *Service) Resolve(ctx context.Context, name string) (*Chat, error) {
	return s.store.GetChat(ctx, name)
}

// Send validates, persists, and fans out a message. The broadcast happens
// only after the durable write succeeds: a storage failure means no
// subscriber ever sees the message.
func (s *Service) Send(ctx context.Context, principal auth.Principal, chatID, content string) (Message, error) {
	if err := s.gate.Authorize(ctx, principal, chatID); err != nil {
		return Message{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Message{}, ErrEmptyContent
	}
	if s.maxContent > 0 && len(content) > s.maxContent {
		return Message{}, ErrContentTooLong
	}
	msg, err := s.store.CreateMessage(ctx, chatID, principal.UserID, content)
	if err != nil {
		return Message{}, err
	}
	if s.broadcast != nil {
		s.broadcast.Publish(chatID, msg)
	}
	return msg, nil
}

// History returns the chat's persisted messages in ascending creation order.
func (s *Service) History(ctx context.Context, principal auth.Principal, chatID string, limit int) ([]Message, error) {
	if err := s.gate.Authorize(ctx, principal, chatID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, chatID, limit)
}

// CreateChat creates a named room. Admin only; names are unique.
func (s *Service) CreateChat(ctx context.Context, principal auth.Principal, name string) (*Chat, error) {
	if !principal.IsAdmin() {
		return nil, ErrForbidden
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	c := &Chat{ID: ids.New(), Name: name}
	if err := s.store.CreateChat(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Assign grants a user access to a chat. Admin only. Adding an existing
// membership is a no-op at the store level.
func (s *Service) Assign(ctx context.Context, principal auth.Principal, userID, chatID string) error {
	if !principal.IsAdmin() {
		return ErrForbidden
	}
	if _, err := s.store.GetChatByID(ctx, chatID); err != nil {
		return err
	}
	return s.store.AddMembership(ctx, userID, chatID)
}

// Unassign revokes a membership. Takes effect for new authorization checks
// immediately; already-joined sockets stay until they disconnect.
func (s *Service) Unassign(ctx context.Context, principal auth.Principal, userID, chatID string) error {
	if !principal.IsAdmin() {
		return ErrForbidden
	}
	return s.store.RemoveMembership(ctx, userID, chatID)
}

// AccessibleChats lists the chats the caller may enter. Admins see all chats.
func (s *Service) AccessibleChats(ctx context.Context, principal auth.Principal) ([]*Chat, error) {
	if principal.IsAdmin() {
		return s.store.ListChats(ctx)
	}
	return s.store.ChatsForUser(ctx, principal.UserID)
}
