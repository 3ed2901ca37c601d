package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
	"parley.chat/internal/config"
	"parley.chat/internal/httpapi"
	"parley.chat/internal/hub"
	"parley.chat/internal/obs"
	"parley.chat/internal/store/memory"
	"parley.chat/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Storage: Postgres when a DSN is configured, in-memory otherwise.
	var (
		chatStore chat.Store
		userStore auth.UserStore
		db        *sql.DB
	)
	if cfg.PGDSN != "" {
		store, err := pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = store.DB()
		chatStore = store
		userStore = store
	} else {
		log.Println("PARLEY_PG_DSN not set; using in-memory storage")
		store := memory.New()
		chatStore = store
		userStore = store
	}

	tokens, err := auth.NewTokenManager(cfg.AuthSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	users := auth.NewService(userStore, tokens)

	broker := hub.New()
	gate := chat.NewGate(chatStore)
	chats := chat.NewService(chatStore, gate, broker, cfg.MaxMessageBytes)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, users, chats, broker, cfg)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting parley-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	// Stop accepting requests, then drop every live socket. Clients observe
	// a going-away close and reconnect elsewhere.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	broker.Shutdown()
	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
