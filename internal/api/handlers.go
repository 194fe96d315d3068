package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"

	"securechat/internal/chat"
	"securechat/internal/server"
	"securechat/internal/types"
)

type CreateRequestRequest struct {
	ToUsername string `json:"to_username"`
}

type RespondRequest struct {
	Action string `json:"action"`
}

type SendMessageRequest struct {
	Text          string `json:"text"`
	ParentId      int    `json:"parent_id,omitempty"`
	ForwardFromId int    `json:"forward_from_id,omitempty"`
}

type EditMessageRequest struct {
	Text string `json:"text"`
}

type ForwardMessageRequest struct {
	ToSessionId int `json:"to_session_id"`
}

type UpdateProfileRequest struct {
	Status string `json:"status"`
}

func (s *ChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

// serviceError maps a chat service error onto the API taxonomy.
func serviceError(err error) *ApiError {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return NewNotFoundError()
	case errors.Is(err, chat.ErrForbidden):
		return NewForbiddenError()
	case errors.Is(err, chat.ErrEmptyText),
		errors.Is(err, chat.ErrSelfRequest),
		errors.Is(err, chat.ErrNotPending):
		return NewBadRequestError()
	default:
		return NewInternalServerError(err)
	}
}

func pathId(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

func (s *ChatApp) healthz(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Println("health check:", err)
		errResp := NewServiceUnavailableError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *ChatApp) createChatRequest(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ToUsername == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	cr, err := s.sessions.CreateRequest(userId, req.ToUsername)
	if err != nil {
		errResp := serviceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.gateway.NotifyRequestUpdate(cr.Id, cr.Status, 0)

	s.writeJson(w, http.StatusOK, map[string]interface{}{
		"request_id": cr.Id,
		"status":     cr.Status,
	})
}

func (s *ChatApp) listChatRequests(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	requests, err := s.sessions.ListRequests(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string][]types.ChatRequest{"requests": requests})
}

func (s *ChatApp) respondChatRequest(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	requestId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	status, sessionId, err := s.sessions.Respond(requestId, userId, req.Action)
	if err != nil {
		errResp := serviceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.gateway.NotifyRequestUpdate(requestId, status, sessionId)

	resp := map[string]interface{}{"status": status}
	if sessionId > 0 {
		resp["session_id"] = sessionId
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *ChatApp) listSessions(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sessions, err := s.sessions.ListSessions(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string][]types.ChatSession{"sessions": sessions})
}

func (s *ChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sessionId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var limit, before int
	var err error

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if beforeStr := r.URL.Query().Get("before"); beforeStr != "" {
		if before, err = strconv.Atoi(beforeStr); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, err := s.store.ListPage(r.Context(), sessionId, userId, limit, before)
	if err != nil {
		errResp := serviceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string][]types.Message{"messages": messages})
}

func (s *ChatApp) postMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sessionId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.store.Send(r.Context(), sessionId, userId, req.Text, req.ParentId, req.ForwardFromId)
	if err != nil {
		errResp := serviceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.gateway.NotifyNewMessage(msg)

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *ChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sessionId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.store.MarkSeen(sessionId, userId); err != nil {
		errResp := serviceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *ChatApp) editMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req EditMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.store.Edit(messageId, userId, req.Text)
	if err != nil {
		errResp := serviceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.gateway.NotifyMessageEdited(msg.SessionId, msg.Id, msg.Plaintext)

	s.writeJson(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *ChatApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.store.SoftDelete(messageId, userId)
	if err != nil {
		errResp := serviceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.gateway.NotifyMessageDeleted(msg.SessionId, msg.Id)

	s.writeJson(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *ChatApp) forwardMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messageId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req ForwardMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ToSessionId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	fwd, err := s.store.Forward(r.Context(), messageId, userId, req.ToSessionId)
	if err != nil {
		errResp := serviceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.gateway.NotifyNewMessage(fwd)

	s.writeJson(w, http.StatusOK, map[string]int{
		"id":         fwd.Id,
		"session_id": fwd.SessionId,
	})
}

func (s *ChatApp) searchMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	sessionId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		if limit, err = strconv.Atoi(limitStr); err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	results, err := s.store.Search(sessionId, userId, query, limit)
	if err != nil {
		errResp := serviceError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string][]int{"results": results})
}

func (s *ChatApp) online(w http.ResponseWriter, _ *http.Request) {
	s.writeJson(w, http.StatusOK, map[string][]int{"users": s.gateway.OnlineUserIds()})
}

func (s *ChatApp) updateProfile(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.UpdateAccountStatus(userId, req.Status)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]types.User{"user": toUser(dbUser)})
}

// handshakeToken resolves the websocket credential: query parameter
// first, then the X-Auth-Token header, then the access cookie.
func handshakeToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	if token := r.Header.Get("X-Auth-Token"); token != "" {
		return token
	}

	if cookie, err := r.Cookie(accessCookieKey); err == nil {
		return cookie.Value
	}

	return ""
}

func (s *ChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	claims, err := s.tokens.VerifyAccess(handshakeToken(r))
	if err != nil {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetAccountById(claims.UserId)
	if err != nil {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	connId, err := s.generateConnId()
	if err != nil {
		s.log.Println("generateConnId:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(toUser(dbUser), connId, conn, s.gateway, s.log)

	s.gateway.RegisterClient(client)
	go client.Write()
	go client.Read()
}
