// adminctl performs the administrative actions directly against the
// database: account and chat provisioning, membership assignment, and token
// minting for testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
	"parley.chat/internal/ids"
	"parley.chat/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	dsn := flag.String("dsn", os.Getenv("PARLEY_PG_DSN"), "PostgreSQL DSN")
	flag.Parse()

	if len(flag.Args()) == 0 {
		usage()
	}
	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or PARLEY_PG_DSN")
	}

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	args := flag.Args()
	switch args[0] {
	case "create-user":
		runCreateUser(ctx, store, args[1:])
	case "create-chat":
		runCreateChat(ctx, store, args[1:])
	case "assign":
		runAssign(ctx, store, args[1:])
	case "revoke":
		runRevoke(ctx, store, args[1:])
	case "token":
		runToken(ctx, store, args[1:])
	default:
		usage()
	}
}

func usage() {
	log.Fatal(`usage: adminctl [-dsn DSN] <command>

commands:
  create-user -username U -password P [-email E] [-role admin|user]
  create-chat -name N
  assign      -username U -chat N
  revoke      -username U -chat N
  token       -username U [-ttl 15m]   (requires PARLEY_AUTH_SECRET)`)
}

func runCreateUser(ctx context.Context, store *pg.Store, args []string) {
	fs := flag.NewFlagSet("create-user", flag.ExitOnError)
	username := fs.String("username", "", "unique username")
	password := fs.String("password", "", "plaintext password to hash")
	email := fs.String("email", "", "email address")
	role := fs.String("role", auth.RoleUser, "admin or user")
	_ = fs.Parse(args)

	if *username == "" || *password == "" {
		log.Fatal("create-user: -username and -password are required")
	}
	hash, err := auth.HashPassword(*password)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	user := &auth.User{
		Username:     *username,
		Email:        *email,
		Role:         *role,
		PasswordHash: hash,
		Active:       true,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		log.Fatalf("create user: %v", err)
	}
	fmt.Println(user.ID)
}

func runCreateChat(ctx context.Context, store *pg.Store, args []string) {
	fs := flag.NewFlagSet("create-chat", flag.ExitOnError)
	name := fs.String("name", "", "unique chat name")
	_ = fs.Parse(args)

	if *name == "" {
		log.Fatal("create-chat: -name is required")
	}
	c := &chat.Chat{ID: ids.New(), Name: *name}
	if err := store.CreateChat(ctx, c); err != nil {
		log.Fatalf("create chat: %v", err)
	}
	fmt.Println(c.ID)
}

func runAssign(ctx context.Context, store *pg.Store, args []string) {
	user, room := memberArgs(ctx, store, "assign", args)
	if err := store.AddMembership(ctx, user.ID, room.ID); err != nil {
		log.Fatalf("assign: %v", err)
	}
	fmt.Printf("assigned %s to %s\n", user.Username, room.Name)
}

func runRevoke(ctx context.Context, store *pg.Store, args []string) {
	user, room := memberArgs(ctx, store, "revoke", args)
	if err := store.RemoveMembership(ctx, user.ID, room.ID); err != nil {
		log.Fatalf("revoke: %v", err)
	}
	fmt.Printf("revoked %s from %s\n", user.Username, room.Name)
}

func memberArgs(ctx context.Context, store *pg.Store, cmd string, args []string) (*auth.User, *chat.Chat) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	username := fs.String("username", "", "username")
	chatName := fs.String("chat", "", "chat name")
	_ = fs.Parse(args)

	if *username == "" || *chatName == "" {
		log.Fatalf("%s: -username and -chat are required", cmd)
	}
	user, err := store.FindUserByUsername(ctx, *username)
	if err != nil {
		log.Fatalf("find user: %v", err)
	}
	room, err := store.GetChat(ctx, *chatName)
	if err != nil {
		log.Fatalf("find chat: %v", err)
	}
	return user, room
}

func runToken(ctx context.Context, store *pg.Store, args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	username := fs.String("username", "", "username")
	ttl := fs.Duration("ttl", 15*time.Minute, "token lifetime")
	_ = fs.Parse(args)

	if *username == "" {
		log.Fatal("token: -username is required")
	}
	tokens, err := auth.NewTokenManager(os.Getenv("PARLEY_AUTH_SECRET"), *ttl)
	if err != nil {
		log.Fatalf("token manager: %v", err)
	}
	user, err := store.FindUserByUsername(ctx, *username)
	if err != nil {
		log.Fatalf("find user: %v", err)
	}
	token, err := tokens.Generate(user)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Println(token)
}
