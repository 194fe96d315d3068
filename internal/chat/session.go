package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"securechat/internal/database"
	"securechat/internal/types"
)

// SessionManager drives the chat-request state machine and creates
// canonical pairwise sessions.
type SessionManager struct {
	log *log.Logger
	db  database.Repository
}

func NewSessionManager(logger *log.Logger, db database.Repository) *SessionManager {
	return &SessionManager{log: logger, db: db}
}

// CreateRequest opens a pending chat request toward toUsername. A
// still-pending request for the same ordered pair is returned
// unchanged, making re-requests idempotent.
func (sm *SessionManager) CreateRequest(senderId int, toUsername string) (types.ChatRequest, error) {
	recipient, err := sm.db.GetAccountByUsername(toUsername)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ChatRequest{}, ErrNotFound
		}
		return types.ChatRequest{}, fmt.Errorf("lookup recipient: %w", err)
	}

	if recipient.Id == senderId {
		return types.ChatRequest{}, ErrSelfRequest
	}

	existing, err := sm.db.GetPendingRequest(senderId, recipient.Id)
	if err == nil {
		return toRequest(existing), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.ChatRequest{}, fmt.Errorf("lookup pending request: %w", err)
	}

	created, err := sm.db.CreateRequest(senderId, recipient.Id)
	if err != nil {
		return types.ChatRequest{}, fmt.Errorf("create request: %w", err)
	}

	return toRequest(created), nil
}

// Respond resolves a pending request. Only the designated recipient
// may respond, and pending is the only state that accepts a response.
// Accepting canonicalizes the pair and reuses any existing session for
// it, so a pair maps to exactly one session regardless of request
// direction. Declining creates nothing.
func (sm *SessionManager) Respond(requestId, responderId int, action string) (string, int, error) {
	cr, err := sm.db.GetRequest(requestId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", 0, ErrNotFound
		}
		return "", 0, fmt.Errorf("lookup request: %w", err)
	}

	if cr.RecipientId != responderId {
		return "", 0, ErrForbidden
	}

	if cr.Status != database.RequestPending {
		return "", 0, ErrNotPending
	}

	status := database.RequestDeclined
	if action == "accept" {
		status = database.RequestAccepted
	}

	if err := sm.db.UpdateRequestStatus(requestId, status); err != nil {
		return "", 0, fmt.Errorf("update request status: %w", err)
	}

	var sessionId int
	if status == database.RequestAccepted {
		a, b := canonicalPair(cr.SenderId, cr.RecipientId)

		session, err := sm.db.GetSessionByPair(a, b)
		if errors.Is(err, sql.ErrNoRows) {
			session, err = sm.db.CreateSession(a, b)
		}
		if err != nil {
			return "", 0, fmt.Errorf("resolve session: %w", err)
		}

		sessionId = session.Id
	}

	return status, sessionId, nil
}

// ListRequests returns all requests the user sent or received, newest
// first.
func (sm *SessionManager) ListRequests(userId int) ([]types.ChatRequest, error) {
	dbRequests, err := sm.db.ListRequests(userId)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	requests := make([]types.ChatRequest, 0, len(dbRequests))
	for _, cr := range dbRequests {
		requests = append(requests, toRequest(cr))
	}

	return requests, nil
}

// ListSessions returns the user's sessions with per-session unread
// counts.
func (sm *SessionManager) ListSessions(userId int) ([]types.ChatSession, error) {
	summaries, err := sm.db.ListSessions(userId)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]types.ChatSession, 0, len(summaries))
	for _, s := range summaries {
		sessions = append(sessions, types.ChatSession{
			Id:            s.SessionId,
			OtherId:       s.OtherId,
			OtherUsername: s.OtherUsername,
			OtherPic:      s.OtherPic,
			UnreadCount:   s.UnreadCount,
			CreatedAt:     s.CreatedAt,
		})
	}

	return sessions, nil
}

func canonicalPair(a, b int) (int, int) {
	if a < b {
		return a, b
	}
	return b, a
}

func toRequest(cr database.ChatRequest) types.ChatRequest {
	return types.ChatRequest{
		Id:        cr.Id,
		Sender:    cr.Sender,
		Recipient: cr.Recipient,
		Status:    cr.Status,
		CreatedAt: cr.CreatedAt,
	}
}
