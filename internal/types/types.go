package types

import (
	"time"
)

type User struct {
	Id         int       `json:"id"`
	Username   string    `json:"username"`
	ProfilePic string    `json:"profile_pic,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

type ChatRequest struct {
	Id        int       `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type ChatSession struct {
	Id            int       `json:"session_id"`
	OtherId       int       `json:"other_id"`
	OtherUsername string    `json:"other_username"`
	OtherPic      string    `json:"other_profile_pic,omitempty"`
	UnreadCount   int       `json:"unread_count"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id              int       `json:"id"`
	SessionId       int       `json:"session_id"`
	SenderId        int       `json:"sender_id"`
	ParentId        int       `json:"parent_id,omitempty"`
	ForwardedFromId int       `json:"forwarded_from_id,omitempty"`
	Plaintext       string    `json:"plaintext"`
	Delivered       bool      `json:"delivered"`
	Seen            bool      `json:"seen"`
	Deleted         bool      `json:"deleted"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}
