package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
	"parley.chat/internal/config"
	"parley.chat/internal/hub"
	"parley.chat/internal/store/memory"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T

	users  *auth.Service
	chats  *chat.Service
	store  *memory.Store
	broker *hub.Hub
}

func testConfig() config.Config {
	return config.Config{
		Addr:            ":0",
		AuthSecret:      "test-secret",
		TokenTTL:        15 * time.Minute,
		MaxMessageBytes: 4096,
		WSIdleTimeout:   time.Minute,
		WSWriteTimeout:  5 * time.Second,
		RateBurst:       1000,
		RatePerSec:      1000,
		HistoryLimit:    200,
	}
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	cfg := testConfig()
	store := memory.New()
	tokens, err := auth.NewTokenManager(cfg.AuthSecret, cfg.TokenTTL)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}
	users := auth.NewService(store, tokens)
	broker := hub.New()
	t.Cleanup(broker.Shutdown)
	chats := chat.NewService(store, chat.NewGate(store), broker, cfg.MaxMessageBytes)

	api := New(ReadyProbe{}, "test", users, chats, broker, cfg)
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	if _, err := users.CreateUser(context.Background(), "admin", "admin@example.com", "admin-pass", auth.RoleAdmin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
		users:   users,
		chats:   chats,
		store:   store,
		broker:  broker,
	}
}

func (c *apiClient) do(method, path string, body any, token string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(username, password string) string {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/auth/token", tokenRequest{Username: username, Password: password}, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

// createMember provisions a regular user through the API and returns its id
// and token.
func (c *apiClient) createMember(adminToken, username, password string) (string, string) {
	c.t.Helper()
	resp := c.do(http.MethodPost, "/v1/users", createUserRequest{
		Username: username,
		Password: password,
	}, adminToken)
	if resp.StatusCode != http.StatusCreated {
		c.t.Fatalf("create user status: %d", resp.StatusCode)
	}
	user := decode[auth.User](c.t, resp)
	return user.ID, c.obtainToken(username, password)
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func wantStatus(t *testing.T, resp *http.Response, code int) {
	t.Helper()
	defer resp.Body.Close()
	if resp.StatusCode != code {
		t.Fatalf("expected status %d, got %d", code, resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	c := newTestAPI(t)

	resp := c.do(http.MethodGet, "/healthz", nil, "")
	body := decode[map[string]any](t, resp)
	if body["status"] != "ok" || body["service"] != "parley-api" {
		t.Fatalf("unexpected health payload: %v", body)
	}

	wantStatus(t, c.do(http.MethodGet, "/readyz", nil, ""), http.StatusOK)
	wantStatus(t, c.do(http.MethodGet, "/v1/info", nil, ""), http.StatusOK)
	wantStatus(t, c.do(http.MethodGet, "/metrics", nil, ""), http.StatusOK)
}

func TestAuthToken(t *testing.T) {
	c := newTestAPI(t)

	token := c.obtainToken("admin", "admin-pass")
	if token == "" {
		t.Fatalf("empty token")
	}

	wantStatus(t, c.do(http.MethodPost, "/v1/auth/token",
		tokenRequest{Username: "admin", Password: "wrong"}, ""), http.StatusUnauthorized)
	wantStatus(t, c.do(http.MethodPost, "/v1/auth/token",
		tokenRequest{}, ""), http.StatusBadRequest)
	wantStatus(t, c.do(http.MethodGet, "/v1/auth/token", nil, ""), http.StatusMethodNotAllowed)
}

func TestAuthRequired(t *testing.T) {
	c := newTestAPI(t)

	wantStatus(t, c.do(http.MethodGet, "/v1/chats", nil, ""), http.StatusUnauthorized)
	wantStatus(t, c.do(http.MethodGet, "/v1/chats", nil, "garbage-token"), http.StatusUnauthorized)
	wantStatus(t, c.do(http.MethodGet, "/v1/users", nil, ""), http.StatusUnauthorized)
}

func TestChatLifecycle(t *testing.T) {
	c := newTestAPI(t)
	adminToken := c.obtainToken("admin", "admin-pass")

	// Create a chat, reject duplicates.
	resp := c.do(http.MethodPost, "/v1/chats", createChatRequest{Name: "general"}, adminToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create chat status: %d", resp.StatusCode)
	}
	created := decode[chat.Chat](t, resp)
	if created.ID == "" || created.Name != "general" {
		t.Fatalf("unexpected chat: %+v", created)
	}
	wantStatus(t, c.do(http.MethodPost, "/v1/chats", createChatRequest{Name: "general"}, adminToken), http.StatusConflict)
	wantStatus(t, c.do(http.MethodPost, "/v1/chats", createChatRequest{Name: "  "}, adminToken), http.StatusBadRequest)

	// Members cannot create chats.
	bobID, bobToken := c.createMember(adminToken, "bob", "bob-pass")
	wantStatus(t, c.do(http.MethodPost, "/v1/chats", createChatRequest{Name: "private"}, bobToken), http.StatusForbidden)

	// Before assignment bob sees no chats and cannot post.
	resp = c.do(http.MethodGet, "/v1/chats", nil, bobToken)
	chats := decode[listChatsResponse](t, resp)
	if len(chats.Items) != 0 {
		t.Fatalf("expected no chats for bob, got %+v", chats.Items)
	}
	wantStatus(t, c.do(http.MethodPost, "/v1/chats/general/messages",
		sendMessageRequest{Content: "hi"}, bobToken), http.StatusForbidden)
	wantStatus(t, c.do(http.MethodGet, "/v1/chats/general/messages", nil, bobToken), http.StatusForbidden)

	// Assign bob; members cannot assign.
	wantStatus(t, c.do(http.MethodPost, "/v1/chats/general/members",
		assignMemberRequest{UserID: bobID}, bobToken), http.StatusForbidden)
	wantStatus(t, c.do(http.MethodPost, "/v1/chats/general/members",
		assignMemberRequest{UserID: bobID}, adminToken), http.StatusNoContent)

	resp = c.do(http.MethodGet, "/v1/chats", nil, bobToken)
	chats = decode[listChatsResponse](t, resp)
	if len(chats.Items) != 1 || chats.Items[0].Name != "general" {
		t.Fatalf("expected general for bob, got %+v", chats.Items)
	}

	// Bob can now post and read history.
	resp = c.do(http.MethodPost, "/v1/chats/general/messages",
		sendMessageRequest{Content: "hello"}, bobToken)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send message status: %d", resp.StatusCode)
	}
	msg := decode[chat.Message](t, resp)
	if msg.ID == 0 || msg.SenderID != bobID || msg.Content != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	resp = c.do(http.MethodGet, "/v1/chats/general/messages", nil, bobToken)
	history := decode[listMessagesResponse](t, resp)
	if len(history.Items) != 1 || history.Items[0].ID != msg.ID {
		t.Fatalf("unexpected history: %+v", history.Items)
	}

	// Unknown chats are 404, distinct from the membership denial.
	wantStatus(t, c.do(http.MethodGet, "/v1/chats/nowhere/messages", nil, bobToken), http.StatusNotFound)
	wantStatus(t, c.do(http.MethodPost, "/v1/chats/nowhere/messages",
		sendMessageRequest{Content: "hi"}, bobToken), http.StatusNotFound)

	// Revoke bob; the next request is denied again.
	wantStatus(t, c.do(http.MethodDelete, "/v1/chats/general/members/"+bobID, nil, adminToken), http.StatusNoContent)
	wantStatus(t, c.do(http.MethodPost, "/v1/chats/general/messages",
		sendMessageRequest{Content: "still here?"}, bobToken), http.StatusForbidden)
}

func TestMessageValidation(t *testing.T) {
	c := newTestAPI(t)
	adminToken := c.obtainToken("admin", "admin-pass")

	wantStatus(t, c.do(http.MethodPost, "/v1/chats", createChatRequest{Name: "general"}, adminToken), http.StatusCreated)

	wantStatus(t, c.do(http.MethodPost, "/v1/chats/general/messages",
		sendMessageRequest{Content: "   "}, adminToken), http.StatusBadRequest)
	wantStatus(t, c.do(http.MethodPost, "/v1/chats/general/messages", nil, adminToken), http.StatusBadRequest)
	wantStatus(t, c.do(http.MethodPost, "/v1/chats/general/messages",
		map[string]any{"content": "ok", "extra": true}, adminToken), http.StatusBadRequest)
}

func TestAdminSeesAllChats(t *testing.T) {
	c := newTestAPI(t)
	adminToken := c.obtainToken("admin", "admin-pass")

	for _, name := range []string{"alpha", "beta"} {
		wantStatus(t, c.do(http.MethodPost, "/v1/chats", createChatRequest{Name: name}, adminToken), http.StatusCreated)
	}
	resp := c.do(http.MethodGet, "/v1/chats", nil, adminToken)
	chats := decode[listChatsResponse](t, resp)
	if len(chats.Items) != 2 {
		t.Fatalf("expected 2 chats, got %+v", chats.Items)
	}

	// Admin reads and posts without a membership row.
	wantStatus(t, c.do(http.MethodGet, "/v1/chats/alpha/messages", nil, adminToken), http.StatusOK)
	wantStatus(t, c.do(http.MethodPost, "/v1/chats/alpha/messages",
		sendMessageRequest{Content: "welcome"}, adminToken), http.StatusCreated)
}

func TestUserAdministration(t *testing.T) {
	c := newTestAPI(t)
	adminToken := c.obtainToken("admin", "admin-pass")

	_, bobToken := c.createMember(adminToken, "bob", "bob-pass")

	wantStatus(t, c.do(http.MethodGet, "/v1/users", nil, bobToken), http.StatusForbidden)
	wantStatus(t, c.do(http.MethodPost, "/v1/users",
		createUserRequest{Username: "eve", Password: "x"}, bobToken), http.StatusForbidden)

	resp := c.do(http.MethodGet, "/v1/users", nil, adminToken)
	users := decode[listUsersResponse](t, resp)
	if len(users.Items) != 2 {
		t.Fatalf("expected 2 users, got %+v", users.Items)
	}
	for _, u := range users.Items {
		if u.PasswordHash != "" {
			t.Fatalf("password hash leaked for %s", u.Username)
		}
	}

	wantStatus(t, c.do(http.MethodPost, "/v1/users",
		createUserRequest{Username: "bob", Password: "again"}, adminToken), http.StatusConflict)
	wantStatus(t, c.do(http.MethodPost, "/v1/users",
		createUserRequest{Username: "", Password: "x"}, adminToken), http.StatusBadRequest)
}

func TestMethodNotAllowed(t *testing.T) {
	c := newTestAPI(t)
	adminToken := c.obtainToken("admin", "admin-pass")

	resp := c.do(http.MethodDelete, "/v1/chats", nil, adminToken)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow == "" {
		t.Fatalf("expected Allow header")
	}
}

func TestUnknownPath(t *testing.T) {
	c := newTestAPI(t)
	adminToken := c.obtainToken("admin", "admin-pass")

	// Unknown paths are behind authentication like everything else.
	wantStatus(t, c.do(http.MethodGet, "/nope", nil, ""), http.StatusUnauthorized)
	wantStatus(t, c.do(http.MethodGet, "/nope", nil, adminToken), http.StatusNotFound)
}

func TestRequestIDPropagation(t *testing.T) {
	c := newTestAPI(t)

	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}

	resp2 := c.do(http.MethodGet, "/healthz", nil, "")
	defer resp2.Body.Close()
	if resp2.Header.Get("X-Request-ID") == "" {
		t.Fatalf("expected generated request id")
	}
}
