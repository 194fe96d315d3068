package database

import (
	"errors"
	"time"
)

// ErrDuplicateUsername is returned by CreateAccount when the username
// is already taken.
var ErrDuplicateUsername = errors.New("username already taken")

type Repository interface {
	Ping() error

	CreateAccount(username string) (User, error)
	GetAccountById(id int) (User, error)
	GetAccountByUsername(username string) (User, error)
	UpdateAccountStatus(userId int, status string) (User, error)

	CreateRefreshToken(userId int, tokenHash []byte, expiresAt time.Time) error
	GetRefreshToken(tokenHash []byte) (RefreshToken, error)
	// RevokeRefreshToken revokes the matching token only where it is
	// still valid, returning the number of rows affected. A zero count
	// means the token was absent, expired or already revoked.
	RevokeRefreshToken(tokenHash []byte) (int64, error)

	GetPendingRequest(senderId, recipientId int) (ChatRequest, error)
	CreateRequest(senderId, recipientId int) (ChatRequest, error)
	GetRequest(id int) (ChatRequest, error)
	UpdateRequestStatus(id int, status string) error
	ListRequests(userId int) ([]ChatRequest, error)

	GetSessionByPair(userA, userB int) (ChatSession, error)
	CreateSession(userA, userB int) (ChatSession, error)
	IsParticipant(sessionId, userId int) bool
	ListSessions(userId int) ([]SessionSummary, error)

	CreateMessage(msg Message) (Message, error)
	GetMessage(id int) (Message, error)
	UpdateMessageBody(id int, ciphertext, iv, authTag []byte) error
	MarkMessageDeleted(id int) error
	MarkDelivered(id int) error
	MarkMessageSeen(id int) error
	MarkSessionSeen(sessionId, readerId int) error
	// GetMessages returns up to limit messages in descending id order,
	// restricted to ids below beforeId when beforeId > 0.
	GetMessages(sessionId, beforeId, limit int) ([]Message, error)
	SearchMessages(sessionId int, query string, limit int) ([]int, error)
}
