package chat_test

import (
	"context"
	"errors"
	"testing"

	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
	"parley.chat/internal/store/memory"
)

func mustChat(t *testing.T, store *memory.Store, name string) *chat.Chat {
	t.Helper()
	c := &chat.Chat{Name: name}
	if err := store.CreateChat(context.Background(), c); err != nil {
		t.Fatalf("CreateChat %s: %v", name, err)
	}
	return c
}

func TestGateAuthorize(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	gate := chat.NewGate(store)

	room := mustChat(t, store, "general")
	if err := store.AddMembership(ctx, "member-1", room.ID); err != nil {
		t.Fatalf("AddMembership: %v", err)
	}

	member := auth.Principal{UserID: "member-1", Role: auth.RoleUser}
	outsider := auth.Principal{UserID: "outsider-1", Role: auth.RoleUser}
	admin := auth.Principal{UserID: "admin-1", Role: auth.RoleAdmin}

	if err := gate.Authorize(ctx, member, room.ID); err != nil {
		t.Fatalf("member denied: %v", err)
	}
	if err := gate.Authorize(ctx, outsider, room.ID); !errors.Is(err, chat.ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}
	if err := gate.Authorize(ctx, admin, room.ID); err != nil {
		t.Fatalf("admin denied: %v", err)
	}
}

func TestGateUnknownChat(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	gate := chat.NewGate(store)
	admin := auth.Principal{UserID: "admin-1", Role: auth.RoleAdmin}

	// Unknown chat beats the admin bypass: the id must resolve first.
	if err := gate.Authorize(ctx, admin, "nope"); !errors.Is(err, chat.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
	member := auth.Principal{UserID: "u1", Role: auth.RoleUser}
	if err := gate.Authorize(ctx, member, "nope"); !errors.Is(err, chat.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
}

func TestGateRevocation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	gate := chat.NewGate(store)

	room := mustChat(t, store, "ops")
	member := auth.Principal{UserID: "u1", Role: auth.RoleUser}

	if err := store.AddMembership(ctx, "u1", room.ID); err != nil {
		t.Fatalf("AddMembership: %v", err)
	}
	if err := gate.Authorize(ctx, member, room.ID); err != nil {
		t.Fatalf("expected access before revocation: %v", err)
	}
	if err := store.RemoveMembership(ctx, "u1", room.ID); err != nil {
		t.Fatalf("RemoveMembership: %v", err)
	}
	// No caching: the very next check sees the revocation.
	if err := gate.Authorize(ctx, member, room.ID); !errors.Is(err, chat.ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember after revocation, got %v", err)
	}
}
