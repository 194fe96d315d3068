package server

import (
	"net/http"
	"time"

	"securechat/internal/types"
)

type BaseMessage struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientEvent is an inbound socket event. Exactly one of the event
// fields is set.
type ClientEvent struct {
	BaseMessage
	Join   *Join   `json:"join,omitempty"`
	Typing *Typing `json:"typing,omitempty"`
	Sent   *Sent   `json:"sent,omitempty"`
	Seen   *Seen   `json:"seen,omitempty"`
	UserId int     `json:"-"`
	client *Client `json:"-"`
}

type Join struct {
	SessionId int `json:"session_id"`
}

type Typing struct {
	SessionId int  `json:"session_id"`
	IsTyping  bool `json:"is_typing"`
}

type Sent struct {
	SessionId int `json:"session_id"`
	MessageId int `json:"message_id"`
}

// Seen marks one message seen, or every unseen message from others in
// the session when MessageId is zero.
type Seen struct {
	SessionId int `json:"session_id"`
	MessageId int `json:"message_id,omitempty"`
}

// ServerEvent is an outbound socket event. SessionId routes
// room-scoped events; zero means broadcast to every connection.
type ServerEvent struct {
	BaseMessage
	Response   *Response       `json:"response,omitempty"`
	Message    *types.Message  `json:"message,omitempty"`
	Edited     *MessageEdited  `json:"message_edited,omitempty"`
	Deleted    *MessageDeleted `json:"message_deleted,omitempty"`
	Typing     *TypingEvent    `json:"typing,omitempty"`
	Delivered  *Delivery       `json:"delivered,omitempty"`
	Seen       *ReadReceipt    `json:"seen,omitempty"`
	Presence   *Presence       `json:"presence,omitempty"`
	Request    *RequestUpdate  `json:"request_update,omitempty"`
	SessionId  int             `json:"-"`
	SkipClient *Client         `json:"-"`
}

type Response struct {
	ResponseCode int    `json:"response_code"`
	Error        string `json:"error,omitempty"`
}

type MessageEdited struct {
	SessionId int    `json:"session_id"`
	MessageId int    `json:"message_id"`
	Plaintext string `json:"plaintext"`
}

type MessageDeleted struct {
	SessionId int `json:"session_id"`
	MessageId int `json:"message_id"`
}

type TypingEvent struct {
	SessionId int  `json:"session_id"`
	UserId    int  `json:"user_id"`
	IsTyping  bool `json:"is_typing"`
}

type Delivery struct {
	SessionId int `json:"session_id"`
	MessageId int `json:"message_id"`
}

type ReadReceipt struct {
	SessionId int `json:"session_id"`
	MessageId int `json:"message_id,omitempty"`
	By        int `json:"by"`
}

type Presence struct {
	UserId int  `json:"user_id"`
	Online bool `json:"online"`
}

type RequestUpdate struct {
	RequestId int    `json:"request_id"`
	Status    string `json:"status,omitempty"`
	SessionId int    `json:"session_id,omitempty"`
}

func NoErrOK(id int) *ServerEvent {
	return &ServerEvent{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
		},
	}
}

func ErrInternalError(id int) *ServerEvent {
	return &ServerEvent{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusInternalServerError,
			Error:        "internal server error",
		},
	}
}

func ErrServiceUnavailable(id int) *ServerEvent {
	return &ServerEvent{
		BaseMessage: BaseMessage{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusServiceUnavailable,
			Error:        "service unavailable",
		},
	}
}

func ErrInvalidMessage(id int) *ServerEvent {
	msg := &ServerEvent{
		BaseMessage: BaseMessage{
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusBadRequest,
			Error:        "invalid message format",
		},
	}

	if id > 0 {
		msg.Id = id
	}
	return msg
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
