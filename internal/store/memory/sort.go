package memory

import (
	"sort"

	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
)

// ULID primary keys sort in creation order, matching the Postgres listing
// queries.

func sortUsers(users []*auth.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
}

func sortChats(chats []*chat.Chat) {
	sort.Slice(chats, func(i, j int) bool { return chats[i].ID < chats[j].ID })
}
