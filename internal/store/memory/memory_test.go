package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
)

func TestUserLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	u := &auth.User{Username: "alice", Email: "alice@example.com", Role: auth.RoleUser, Active: true}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatalf("expected assigned id and timestamp: %+v", u)
	}

	dup := &auth.User{Username: "alice"}
	if err := s.CreateUser(ctx, dup); !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := s.FindUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("FindUser: %v", err)
	}
	if got.Username != "alice" {
		t.Fatalf("unexpected user: %+v", got)
	}
	// Returned copies must not alias the stored record.
	got.Username = "mallory"
	again, _ := s.FindUser(ctx, u.ID)
	if again.Username != "alice" {
		t.Fatalf("store record was mutated through a returned copy")
	}

	if _, err := s.FindUser(ctx, "missing"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	byName, err := s.FindUserByUsername(ctx, "alice")
	if err != nil || byName.ID != u.ID {
		t.Fatalf("FindUserByUsername: %+v, %v", byName, err)
	}

	users, err := s.ListUsers(ctx)
	if err != nil || len(users) != 1 {
		t.Fatalf("ListUsers: %+v, %v", users, err)
	}
}

func TestChatLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	c := &chat.Chat{Name: "general"}
	if err := s.CreateChat(ctx, c); err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	if err := s.CreateChat(ctx, &chat.Chat{Name: "general"}); !errors.Is(err, chat.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	byName, err := s.GetChat(ctx, "general")
	if err != nil || byName.ID != c.ID {
		t.Fatalf("GetChat: %+v, %v", byName, err)
	}
	byID, err := s.GetChatByID(ctx, c.ID)
	if err != nil || byID.Name != "general" {
		t.Fatalf("GetChatByID: %+v, %v", byID, err)
	}
	if _, err := s.GetChat(ctx, "missing"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	chats, err := s.ListChats(ctx)
	if err != nil || len(chats) != 1 {
		t.Fatalf("ListChats: %+v, %v", chats, err)
	}
}

func TestMemberships(t *testing.T) {
	ctx := context.Background()
	s := New()

	c := &chat.Chat{Name: "general"}
	if err := s.CreateChat(ctx, c); err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	if err := s.AddMembership(ctx, "u1", "missing"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.AddMembership(ctx, "u1", c.ID); err != nil {
		t.Fatalf("AddMembership: %v", err)
	}
	if err := s.AddMembership(ctx, "u1", c.ID); err != nil {
		t.Fatalf("AddMembership twice: %v", err)
	}

	ok, err := s.IsMember(ctx, "u1", c.ID)
	if err != nil || !ok {
		t.Fatalf("IsMember: %v, %v", ok, err)
	}
	ok, err = s.IsMember(ctx, "u2", c.ID)
	if err != nil || ok {
		t.Fatalf("expected non-member, got %v, %v", ok, err)
	}

	chats, err := s.ChatsForUser(ctx, "u1")
	if err != nil || len(chats) != 1 || chats[0].ID != c.ID {
		t.Fatalf("ChatsForUser: %+v, %v", chats, err)
	}

	if err := s.RemoveMembership(ctx, "u1", c.ID); err != nil {
		t.Fatalf("RemoveMembership: %v", err)
	}
	// Removing an absent membership is a no-op.
	if err := s.RemoveMembership(ctx, "u1", c.ID); err != nil {
		t.Fatalf("RemoveMembership twice: %v", err)
	}
	ok, _ = s.IsMember(ctx, "u1", c.ID)
	if ok {
		t.Fatalf("membership survived removal")
	}
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	s := New()

	c := &chat.Chat{Name: "general"}
	if err := s.CreateChat(ctx, c); err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	if _, err := s.CreateMessage(ctx, "missing", "u1", "hi"); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.ListMessages(ctx, "missing", 0); !errors.Is(err, chat.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := s.CreateMessage(ctx, c.ID, "u1", "msg"); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}

	all, err := s.ListMessages(ctx, c.ID, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].ID <= all[i-1].ID {
			t.Fatalf("ids out of order: %+v", all)
		}
	}

	// A limit keeps the newest messages, still in ascending order.
	last2, err := s.ListMessages(ctx, c.ID, 2)
	if err != nil {
		t.Fatalf("ListMessages limit: %v", err)
	}
	if len(last2) != 2 || last2[0].ID != all[3].ID || last2[1].ID != all[4].ID {
		t.Fatalf("unexpected window: %+v", last2)
	}
}

func TestConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := &chat.Chat{Name: "general"}
	if err := s.CreateChat(ctx, c); err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if _, err := s.CreateMessage(ctx, c.ID, "u1", "hi"); err != nil {
					t.Errorf("CreateMessage: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	msgs, err := s.ListMessages(ctx, c.ID, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 200 {
		t.Fatalf("expected 200 messages, got %d", len(msgs))
	}
	seen := make(map[int64]bool, len(msgs))
	for _, m := range msgs {
		if seen[m.ID] {
			t.Fatalf("duplicate message id %d", m.ID)
		}
		seen[m.ID] = true
	}
}
