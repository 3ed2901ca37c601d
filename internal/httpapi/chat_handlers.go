package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"parley.chat/internal/audit"
	"parley.chat/internal/auth"
	"parley.chat/internal/chat"
)

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type createChatRequest struct {
	Name string `json:"name"`
}

type assignMemberRequest struct {
	UserID string `json:"user_id"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

type listMessagesResponse struct {
	Items []chat.Message `json:"items"`
	AsOf  time.Time      `json:"as_of"`
}

type listChatsResponse struct {
	Items []*chat.Chat `json:"items"`
}

type listUsersResponse struct {
	Items []*auth.User `json:"items"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listUsers(w, r)
	case http.MethodPost:
		a.createUser(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	users, err := a.users.ListUsers(r.Context())
	if err != nil {
		handleChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listUsersResponse{Items: users})
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireAdmin(w, r); !ok {
		return
	}
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.users.CreateUser(r.Context(), req.Username, req.Email, req.Password, req.Role)
	if err != nil {
		handleChatError(w, r, err)
		return
	}
	a.auditEvent(r, "user.create", map[string]any{
		"created_user_id": user.ID,
		"username":        user.Username,
		"role":            user.Role,
	})
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleChatsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listChats(w, r)
	case http.MethodPost:
		a.createChat(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) listChats(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	chats, err := a.chats.AccessibleChats(r.Context(), principal)
	if err != nil {
		handleChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listChatsResponse{Items: chats})
}

func (a *API) createChat(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	var req createChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	c, err := a.chats.CreateChat(r.Context(), principal, req.Name)
	if err != nil {
		handleChatError(w, r, err)
		return
	}
	a.auditEvent(r, "chat.create", map[string]any{
		"chat_id": c.ID,
		"name":    c.Name,
	})
	w.Header().Set("Location", "/v1/chats/"+c.Name)
	writeJSON(w, http.StatusCreated, c)
}

// handleChatResource routes /v1/chats/{name}/messages and
// /v1/chats/{name}/members[/{userID}].
func (a *API) handleChatResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/chats/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	name := parts[0]

	switch {
	case len(parts) == 2 && parts[1] == "messages":
		switch r.Method {
		case http.MethodGet:
			a.listMessages(w, r, name)
		case http.MethodPost:
			a.sendMessage(w, r, name)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 2 && parts[1] == "members":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.assignMember(w, r, name)
	case len(parts) == 3 && parts[1] == "members":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		a.removeMember(w, r, name, parts[2])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) resolveChat(w http.ResponseWriter, r *http.Request, name string) (*chat.Chat, bool) {
	c, err := a.chats.Resolve(r.Context(), name)
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "chat not found")
		} else {
			handleChatError(w, r, err)
		}
		return nil, false
	}
	return c, true
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request, name string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	c, ok := a.resolveChat(w, r, name)
	if !ok {
		return
	}
	msgs, err := a.chats.History(r.Context(), principal, c.ID, a.cfg.HistoryLimit)
	if err != nil {
		handleChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listMessagesResponse{Items: msgs, AsOf: time.Now().UTC()})
}

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request, name string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	c, ok := a.resolveChat(w, r, name)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := a.chats.Send(r.Context(), principal, c.ID, req.Content)
	if err != nil {
		handleChatError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (a *API) assignMember(w http.ResponseWriter, r *http.Request, name string) {
	principal, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	c, ok := a.resolveChat(w, r, name)
	if !ok {
		return
	}
	var req assignMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	if err := a.chats.Assign(r.Context(), principal, req.UserID, c.ID); err != nil {
		handleChatError(w, r, err)
		return
	}
	a.auditEvent(r, "membership.assign", map[string]any{
		"chat_id":        c.ID,
		"member_user_id": req.UserID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) removeMember(w http.ResponseWriter, r *http.Request, name, userID string) {
	principal, ok := requireAdmin(w, r)
	if !ok {
		return
	}
	c, ok := a.resolveChat(w, r, name)
	if !ok {
		return
	}
	if err := a.chats.Unassign(r.Context(), principal, userID, c.ID); err != nil {
		handleChatError(w, r, err)
		return
	}
	a.auditEvent(r, "membership.revoke", map[string]any{
		"chat_id":        c.ID,
		"member_user_id": userID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) auditEvent(r *http.Request, event string, fields map[string]any) {
	_ = audit.LogEvent(r.Context(), event, fields)
}

// --- helpers ---

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleChatError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyContent),
		errors.Is(err, chat.ErrContentTooLong),
		errors.Is(err, chat.ErrInvalidName),
		errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, chat.ErrNotAMember), errors.Is(err, chat.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, chat.ErrChatNotFound),
		errors.Is(err, chat.ErrNotFound),
		errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, chat.ErrAlreadyExists), errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
