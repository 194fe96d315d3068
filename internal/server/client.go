package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"securechat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 1024
)

type Client struct {
	conn    *websocket.Conn
	gateway *Gateway
	log     *log.Logger
	user    types.User
	// connId identifies this connection in the presence registry; a
	// user may hold several at once.
	connId   string
	send     chan *ServerEvent
	stop     chan struct{}
	stopOnce sync.Once
}

func NewClient(user types.User, connId string, conn *websocket.Conn, g *Gateway, l *log.Logger) *Client {
	return &Client{
		conn:    conn,
		gateway: g,
		log:     l,
		user:    user,
		connId:  connId,
		send:    make(chan *ServerEvent, 256),
		stop:    make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(time.Duration(pingInterval))
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var event ClientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			c.log.Println("error parsing event:", err)
			c.queueEvent(ErrInvalidMessage(-1))
			continue
		}

		if event.Join == nil && event.Typing == nil && event.Sent == nil && event.Seen == nil {
			c.queueEvent(ErrInvalidMessage(event.Id))
			continue
		}

		event.client = c
		event.UserId = c.user.Id
		event.Timestamp = Now()

		select {
		case c.gateway.eventChan <- &event:
		default:
			c.log.Println("eventChan full, dropping event")
			c.queueEvent(ErrServiceUnavailable(event.Id))
		}
	}
}

// queueEvent delivers best-effort: if the client's send buffer is full
// the event is dropped.
func (c *Client) queueEvent(msg *ServerEvent) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Println("failed to queue event for client, channel is full")
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

// stopClient is safe to call from both the gateway shutdown path and
// the read pump's cleanup.
func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.gateway.deRegisterChan <- c
	c.stopClient()
}
