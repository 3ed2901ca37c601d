// Package chat holds the chat domain: rooms, memberships, messages, and the
// authorization and send paths shared by the HTTP and WebSocket transports.
package chat

import "time"

// Chat is a named room. Names are unique; chats are created by admins and
// never mutated afterwards.
type Chat struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership grants one user read/write access to one chat. The (user, chat)
// pair is unique.
type Membership struct {
	UserID    string    `json:"user_id"`
	ChatID    string    `json:"chat_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is immutable once created. ID is the storage insertion sequence and
// breaks ordering ties between messages with equal creation timestamps.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
