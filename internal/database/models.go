package database

import (
	"database/sql"
	"time"
)

const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestDeclined = "declined"
)

type User struct {
	Id         int
	Username   string
	ProfilePic string
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type RefreshToken struct {
	Id        int
	UserId    int
	TokenHash []byte
	ExpiresAt time.Time
	RevokedAt sql.NullTime
	CreatedAt time.Time
}

type ChatRequest struct {
	Id            int
	SenderId      int
	RecipientId   int
	Sender        string
	Recipient     string
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ChatSession struct {
	Id        int
	UserA     int
	UserB     int
	CreatedAt time.Time
}

// SessionSummary is a session row shaped for one participant's contact
// list: the other user plus that participant's unread count.
type SessionSummary struct {
	SessionId     int
	OtherId       int
	OtherUsername string
	OtherPic      string
	UnreadCount   int
	CreatedAt     time.Time
}

type Message struct {
	Id              int
	SessionId       int
	SenderId        int
	ParentId        sql.NullInt64
	ForwardedFromId sql.NullInt64
	Ciphertext      []byte
	IV              []byte
	AuthTag         []byte
	Delivered       bool
	Seen            bool
	Deleted         bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
