// Package pg implements the chat and user stores on PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
	"parley.chat/internal/ids"
)

// Store wraps a database/sql pool over the pgx stdlib driver.
type Store struct {
	db *sql.DB
}

var (
	_ chat.Store     = (*Store)(nil)
	_ auth.UserStore = (*Store)(nil)
)

// Open connects to PostgreSQL and tunes the pool.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool, mainly for tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Users -------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into users(id, username, email, role, password_hash, active)
		values ($1,$2,$3,$4,$5,$6)
		returning created_at
	`, u.ID, u.Username, u.Email, u.Role, u.PasswordHash, u.Active).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	return err
}

func (s *Store) FindUser(ctx context.Context, id string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, username, email, role, password_hash, active, created_at
		from users where id=$1
	`, id))
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, username, email, role, password_hash, active, created_at
		from users where username=$1
	`, username))
}

func (s *Store) scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.PasswordHash, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, username, email, role, password_hash, active, created_at
		from users order by id asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*auth.User
	for rows.Next() {
		var u auth.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &u.PasswordHash, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// Chats -------------------------------------------------------------------

func (s *Store) CreateChat(ctx context.Context, c *chat.Chat) error {
	if c.ID == "" {
		c.ID = ids.New()
	}
	err := s.db.QueryRowContext(ctx, `
		insert into chats(id, name) values ($1,$2) returning created_at
	`, c.ID, c.Name).Scan(&c.CreatedAt)
	if isUniqueViolation(err) {
		return chat.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetChat(ctx context.Context, name string) (*chat.Chat, error) {
	return s.scanChat(s.db.QueryRowContext(ctx, `
		select id, name, created_at from chats where name=$1
	`, name))
}

func (s *Store) GetChatByID(ctx context.Context, id string) (*chat.Chat, error) {
	return s.scanChat(s.db.QueryRowContext(ctx, `
		select id, name, created_at from chats where id=$1
	`, id))
}

func (s *Store) scanChat(row *sql.Row) (*chat.Chat, error) {
	var c chat.Chat
	err := row.Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, chat.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListChats(ctx context.Context) ([]*chat.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `select id, name, created_at from chats order by id asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChats(rows)
}

// Memberships -------------------------------------------------------------

func (s *Store) AddMembership(ctx context.Context, userID, chatID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into memberships(user_id, chat_id) values ($1,$2)
		on conflict (user_id, chat_id) do nothing
	`, userID, chatID)
	return err
}

func (s *Store) RemoveMembership(ctx context.Context, userID, chatID string) error {
	_, err := s.db.ExecContext(ctx, `
		delete from memberships where user_id=$1 and chat_id=$2
	`, userID, chatID)
	return err
}

func (s *Store) IsMember(ctx context.Context, userID, chatID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists(select 1 from memberships where user_id=$1 and chat_id=$2)
	`, userID, chatID).Scan(&exists)
	return exists, err
}

func (s *Store) ChatsForUser(ctx context.Context, userID string) ([]*chat.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		select c.id, c.name, c.created_at
		from chats c
		join memberships m on m.chat_id = c.id
		where m.user_id=$1
		order by c.id asc
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChats(rows)
}

func collectChats(rows *sql.Rows) ([]*chat.Chat, error) {
	var out []*chat.Chat
	for rows.Next() {
		var c chat.Chat
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// Messages ----------------------------------------------------------------

func (s *Store) CreateMessage(ctx context.Context, chatID, senderID, content string) (chat.Message, error) {
	msg := chat.Message{ChatID: chatID, SenderID: senderID, Content: content}
	err := s.db.QueryRowContext(ctx, `
		insert into messages(chat_id, sender_id, content)
		values ($1,$2,$3)
		returning id, created_at
	`, chatID, senderID, content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, chatID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 200
	}
	// Insertion sequence (bigserial id) breaks creation-time ties. The inner
	// query takes the newest rows, the outer restores ascending order.
	rows, err := s.db.QueryContext(ctx, `
		select id, chat_id, sender_id, content, created_at from (
			select id, chat_id, sender_id, content, created_at
			from messages
			where chat_id=$1
			order by created_at desc, id desc
			limit $2
		) tail
		order by created_at asc, id asc
	`, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
