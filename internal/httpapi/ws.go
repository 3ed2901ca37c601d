package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
	"parley.chat/internal/hub"
	"parley.chat/internal/obs"
)

// Close codes surfaced to clients. Authentication and the two authorization
// deny reasons stay distinguishable.
const (
	closeAuthFailure  = 4001
	closeNotAMember   = 4003
	closeChatNotFound = 4004
)

// wsInbound is the only frame clients send after joining.
type wsInbound struct {
	Content string `json:"content"`
}

// wsOutbound mirrors the persisted message on the wire.
type wsOutbound struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"chatId"`
	SenderID  string    `json:"senderId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// wsError reports a recoverable send failure to the offending client only.
type wsError struct {
	Error string `json:"error"`
}

func outbound(m chat.Message) wsOutbound {
	return wsOutbound{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}

// handleChatSocket runs the per-connection lifecycle: upgrade, authenticate,
// authorize, register, pump, and always unregister on the way out.
func (a *API) handleChatSocket(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/chat/"), "/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, r, http.StatusNotFound, "chat name is required")
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(origin, a.cfg.AllowedOrigins)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	ctx := r.Context()

	// Authenticating: bearer header, or token query parameter for browser
	// clients that cannot set headers on the handshake.
	token := r.URL.Query().Get("token")
	if token == "" {
		if t, err := extractBearerToken(r.Header.Get(authHeader)); err == nil {
			token = t
		}
	}
	principal, err := a.users.Authenticate(ctx, token)
	if err != nil {
		a.closeWith(conn, closeAuthFailure, "authentication failed")
		return
	}

	// Authorizing: resolve the chat by name, then run the membership gate.
	room, err := a.chats.Resolve(ctx, name)
	if err != nil {
		a.closeWith(conn, closeChatNotFound, "chat not found")
		return
	}
	if err := a.chats.Gate().Authorize(ctx, principal, room.ID); err != nil {
		switch {
		case errors.Is(err, chat.ErrChatNotFound):
			a.closeWith(conn, closeChatNotFound, "chat not found")
		case errors.Is(err, chat.ErrNotAMember):
			a.closeWith(conn, closeNotAMember, "not a member of this chat")
		default:
			a.closeWith(conn, websocket.CloseInternalServerErr, "authorization error")
		}
		return
	}

	// Joined: register with the hub. Unregister runs on every exit path.
	sub := a.hub.Subscribe(room.ID)
	defer sub.Close()

	obs.ConnectionJoined()
	defer obs.ConnectionLeft()

	sendErrs := make(chan string, 8)
	writeDone := make(chan struct{})
	go a.socketWritePump(conn, sub, sendErrs, writeDone)

	a.socketReadPump(ctx, conn, principal, room.ID, sendErrs)

	// Reader finished: drop the subscription so the write pump drains and
	// exits, then wait for it before releasing the socket.
	sub.Close()
	<-writeDone
}

// socketReadPump relays inbound send-requests until the client goes away.
// Validation and storage failures are reported to the sender and never
// disconnect the socket.
func (a *API) socketReadPump(ctx context.Context, conn *websocket.Conn, principal auth.Principal, chatID string, sendErrs chan<- string) {
	// Allow some framing overhead beyond the content bound.
	conn.SetReadLimit(int64(a.cfg.MaxMessageBytes) + 1024)
	_ = conn.SetReadDeadline(time.Now().Add(a.cfg.WSIdleTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(a.cfg.WSIdleTimeout))
	})

	for {
		var req wsInbound
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				obs.LogEvent(map[string]any{
					"type": "ws", "event": "read_error", "error": err.Error(),
				})
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(a.cfg.WSIdleTimeout))

		if _, err := a.chats.Send(ctx, principal, chatID, req.Content); err != nil {
			// Recoverable: the sender learns about it, nobody else does.
			select {
			case sendErrs <- err.Error():
			default:
			}
		}
	}
}

// socketWritePump is the single writer for the connection: hub pushes, error
// frames for the sender, keepalive pings, and the final close frame.
func (a *API) socketWritePump(conn *websocket.Conn, sub *hub.Subscription, sendErrs <-chan string, done chan<- struct{}) {
	defer close(done)
	// Closing the connection here unblocks the read pump on shutdown and on
	// write failures. Double close of the socket is harmless.
	defer conn.Close()

	pingInterval := a.cfg.WSIdleTimeout * 9 / 10
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sub.C:
			if !ok {
				// Subscription gone: shutdown or reader exit. Tell the
				// client we are going away; harmless if it already left.
				deadline := time.Now().Add(a.cfg.WSWriteTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					deadline)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(a.cfg.WSWriteTimeout))
			if err := conn.WriteJSON(outbound(msg)); err != nil {
				return
			}
		case msg := <-sendErrs:
			_ = conn.SetWriteDeadline(time.Now().Add(a.cfg.WSWriteTimeout))
			if err := conn.WriteJSON(wsError{Error: msg}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(a.cfg.WSWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeWith sends a close frame with the given code and releases the socket.
func (a *API) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(a.cfg.WSWriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}
