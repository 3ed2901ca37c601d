package chat

import "context"

// Store is the narrow data-access interface behind the chat domain. Postgres
// implements it for production; an in-memory variant backs tests and
// DSN-less development.
type Store interface {
	CreateChat(ctx context.Context, c *Chat) error
	GetChat(ctx context.Context, name string) (*Chat, error)
	GetChatByID(ctx context.Context, id string) (*Chat, error)
	ListChats(ctx context.Context) ([]*Chat, error)

	AddMembership(ctx context.Context, userID, chatID string) error
	RemoveMembership(ctx context.Context, userID, chatID string) error
	IsMember(ctx context.Context, userID, chatID string) (bool, error)
	ChatsForUser(ctx context.Context, userID string) ([]*Chat, error)

	// CreateMessage assigns the id and server timestamp on insert.
	CreateMessage(ctx context.Context, chatID, senderID, content string) (Message, error)
	// ListMessages returns up to limit messages in ascending creation order,
	// ties broken by insertion sequence.
	ListMessages(ctx context.Context, chatID string, limit int) ([]Message, error)
}
