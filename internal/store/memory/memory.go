// Package memory implements the chat and user stores with in-process
// concurrency safety. It backs tests and DSN-less development runs.
package memory

import (
	"context"
	"sync"
	"time"

	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
	"parley.chat/internal/ids"
)

// Store keeps everything behind one mutex. Message ids are assigned from a
// monotonically increasing sequence, matching the bigserial column in
// Postgres.
type Store struct {
	mu          sync.RWMutex
	users       map[string]*auth.User
	usersByName map[string]string
	chats       map[string]*chat.Chat
	chatsByName map[string]string
	members     map[string]map[string]time.Time // chatID -> userID -> granted at
	messages    map[string][]chat.Message       // chatID -> ascending by id
	nextMsgID   int64
}

var (
	_ chat.Store     = (*Store)(nil)
	_ auth.UserStore = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]*auth.User),
		usersByName: make(map[string]string),
		chats:       make(map[string]*chat.Chat),
		chatsByName: make(map[string]string),
		members:     make(map[string]map[string]time.Time),
		messages:    make(map[string][]chat.Message),
	}
}

// Users -------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByName[u.Username]; ok {
		return auth.ErrAlreadyExists
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	cp := *u
	s.users[u.ID] = &cp
	s.usersByName[u.Username] = u.ID
	return nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersByName[username]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*auth.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	sortUsers(out)
	return out, nil
}

// Chats -------------------------------------------------------------------

func (s *Store) CreateChat(ctx context.Context, c *chat.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chatsByName[c.Name]; ok {
		return chat.ErrAlreadyExists
	}
	if c.ID == "" {
		c.ID = ids.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	cp := *c
	s.chats[c.ID] = &cp
	s.chatsByName[c.Name] = c.ID
	return nil
}

func (s *Store) GetChat(ctx context.Context, name string) (*chat.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.chatsByName[name]
	if !ok {
		return nil, chat.ErrNotFound
	}
	cp := *s.chats[id]
	return &cp, nil
}

func (s *Store) GetChatByID(ctx context.Context, id string) (*chat.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, chat.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListChats(ctx context.Context) ([]*chat.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*chat.Chat, 0, len(s.chats))
	for _, c := range s.chats {
		cp := *c
		out = append(out, &cp)
	}
	sortChats(out)
	return out, nil
}

// Memberships -------------------------------------------------------------

func (s *Store) AddMembership(ctx context.Context, userID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[chatID]; !ok {
		return chat.ErrNotFound
	}
	room, ok := s.members[chatID]
	if !ok {
		room = make(map[string]time.Time)
		s.members[chatID] = room
	}
	if _, ok := room[userID]; !ok {
		room[userID] = time.Now().UTC()
	}
	return nil
}

func (s *Store) RemoveMembership(ctx context.Context, userID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.members[chatID]; ok {
		delete(room, userID)
	}
	return nil
}

func (s *Store) IsMember(ctx context.Context, userID, chatID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.members[chatID]
	if !ok {
		return false, nil
	}
	_, ok = room[userID]
	return ok, nil
}

func (s *Store) ChatsForUser(ctx context.Context, userID string) ([]*chat.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*chat.Chat
	for chatID, room := range s.members {
		if _, ok := room[userID]; !ok {
			continue
		}
		if c, ok := s.chats[chatID]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	sortChats(out)
	return out, nil
}

// Messages ----------------------------------------------------------------

func (s *Store) CreateMessage(ctx context.Context, chatID, senderID, content string) (chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[chatID]; !ok {
		return chat.Message{}, chat.ErrNotFound
	}
	s.nextMsgID++
	msg := chat.Message{
		ID:        s.nextMsgID,
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.messages[chatID] = append(s.messages[chatID], msg)
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, chatID string, limit int) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.chats[chatID]; !ok {
		return nil, chat.ErrNotFound
	}
	msgs := s.messages[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}
