package server

import (
	"context"
	"log"

	"securechat/internal/chat"
	"securechat/internal/stats"
	"securechat/internal/types"
)

// Gateway relays realtime events between connected clients. Room state
// and client membership are owned by the Run loop; all mutations
// arrive over channels.
type Gateway struct {
	log      *log.Logger
	store    *chat.MessageStore
	presence *PresenceRegistry
	stats    stats.StatsProvider

	clients map[*Client]struct{}
	// rooms maps a session id to the clients that joined its room
	rooms map[int]map[*Client]struct{}

	RegisterChan   chan *Client
	deRegisterChan chan *Client
	eventChan      chan *ClientEvent
	broadcastChan  chan *ServerEvent
	stop           chan struct{}
	done           chan struct{}
}

func NewGateway(logger *log.Logger, store *chat.MessageStore, sp stats.StatsProvider) (*Gateway, error) {
	g := &Gateway{
		log:            logger,
		store:          store,
		presence:       NewPresenceRegistry(),
		stats:          sp,
		clients:        make(map[*Client]struct{}),
		rooms:          make(map[int]map[*Client]struct{}),
		RegisterChan:   make(chan *Client, 16),
		deRegisterChan: make(chan *Client, 16),
		eventChan:      make(chan *ClientEvent, 256),
		broadcastChan:  make(chan *ServerEvent, 256),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	g.stats.RegisterMetric(stats.ActiveConnections)
	g.stats.RegisterMetric(stats.ActiveRooms)
	g.stats.RegisterMetric(stats.MessagesSent)
	g.stats.RegisterMetric(stats.EventsBroadcast)

	return g, nil
}

func (g *Gateway) Run() {
	for {
		select {
		case client := <-g.RegisterChan:
			g.addClient(client)
		case client := <-g.deRegisterChan:
			g.removeClient(client)
		case event := <-g.eventChan:
			switch {
			case event.Join != nil:
				g.handleJoin(event)
			case event.Typing != nil:
				g.handleTyping(event)
			case event.Sent != nil:
				g.handleSent(event)
			case event.Seen != nil:
				g.handleSeen(event)
			}
		case msg := <-g.broadcastChan:
			g.deliver(msg)
		case <-g.stop:
			g.log.Println("closing client connections")
			for c := range g.clients {
				c.stopClient()
			}

			close(g.done)
			return
		}
	}
}

func (g *Gateway) addClient(c *Client) {
	g.log.Printf("adding connection %q for %q", c.connId, c.user.Username)
	g.clients[c] = struct{}{}
	g.stats.Incr(stats.ActiveConnections)

	if first := g.presence.Add(c.user.Id, c.connId); first {
		g.deliver(&ServerEvent{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Presence:    &Presence{UserId: c.user.Id, Online: true},
			SkipClient:  c,
		})
	}
}

func (g *Gateway) removeClient(c *Client) {
	if _, ok := g.clients[c]; !ok {
		return
	}

	g.log.Printf("removing connection %q for %q", c.connId, c.user.Username)
	delete(g.clients, c)
	g.stats.Decr(stats.ActiveConnections)

	for sessionId := range g.rooms {
		g.leaveRoom(sessionId, c)
	}

	if last := g.presence.Remove(c.user.Id, c.connId); last {
		g.deliver(&ServerEvent{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Presence:    &Presence{UserId: c.user.Id, Online: false},
		})
	}
}

func (g *Gateway) handleJoin(event *ClientEvent) {
	sessionId := event.Join.SessionId

	if g.rooms[sessionId] == nil {
		g.rooms[sessionId] = make(map[*Client]struct{})
		g.stats.Incr(stats.ActiveRooms)
	}
	g.rooms[sessionId][event.client] = struct{}{}

	event.client.queueEvent(NoErrOK(event.Id))
}

func (g *Gateway) leaveRoom(sessionId int, c *Client) {
	room, ok := g.rooms[sessionId]
	if !ok {
		return
	}

	delete(room, c)
	if len(room) == 0 {
		delete(g.rooms, sessionId)
		g.stats.Decr(stats.ActiveRooms)
	}
}

// handleTyping relays a typing indicator to the room, excluding the
// sender. Indicators are never persisted; receivers expire a stale
// indicator on their own when no refresh arrives.
func (g *Gateway) handleTyping(event *ClientEvent) {
	g.deliver(&ServerEvent{
		BaseMessage: BaseMessage{Timestamp: event.Timestamp},
		Typing: &TypingEvent{
			SessionId: event.Typing.SessionId,
			UserId:    event.UserId,
			IsTyping:  event.Typing.IsTyping,
		},
		SessionId:  event.Typing.SessionId,
		SkipClient: event.client,
	})
}

func (g *Gateway) handleSent(event *ClientEvent) {
	if err := g.store.MarkDelivered(event.Sent.MessageId); err != nil {
		g.log.Println("mark delivered:", err)
		event.client.queueEvent(ErrInternalError(event.Id))
		return
	}

	g.deliver(&ServerEvent{
		BaseMessage: BaseMessage{Timestamp: event.Timestamp},
		Delivered: &Delivery{
			SessionId: event.Sent.SessionId,
			MessageId: event.Sent.MessageId,
		},
		SessionId:  event.Sent.SessionId,
		SkipClient: event.client,
	})
}

func (g *Gateway) handleSeen(event *ClientEvent) {
	var err error
	if event.Seen.MessageId > 0 {
		err = g.store.MarkSeenOne(event.Seen.MessageId)
	} else {
		err = g.store.MarkSeen(event.Seen.SessionId, event.UserId)
	}
	if err != nil {
		g.log.Println("mark seen:", err)
		event.client.queueEvent(ErrInternalError(event.Id))
		return
	}

	g.deliver(&ServerEvent{
		BaseMessage: BaseMessage{Timestamp: event.Timestamp},
		Seen: &ReadReceipt{
			SessionId: event.Seen.SessionId,
			MessageId: event.Seen.MessageId,
			By:        event.UserId,
		},
		SessionId:  event.Seen.SessionId,
		SkipClient: event.client,
	})
}

// deliver fans an event out to its room, or to every connection when
// it has no session scope. Delivery is best-effort: slow clients drop
// events.
func (g *Gateway) deliver(msg *ServerEvent) {
	targets := g.clients
	if msg.SessionId > 0 {
		targets = g.rooms[msg.SessionId]
	}

	for client := range targets {
		if client == msg.SkipClient {
			continue
		}

		client.queueEvent(msg)
	}

	g.stats.Incr(stats.EventsBroadcast)
}

// queueBroadcast hands a server-initiated event to the Run loop
// without blocking the HTTP path.
func (g *Gateway) queueBroadcast(msg *ServerEvent) {
	select {
	case g.broadcastChan <- msg:
	default:
		g.log.Println("broadcastChan full, dropping event")
	}
}

func (g *Gateway) RegisterClient(c *Client) {
	g.RegisterChan <- c
}

// NotifyNewMessage announces a freshly stored message to its session's
// room.
func (g *Gateway) NotifyNewMessage(msg types.Message) {
	g.stats.Incr(stats.MessagesSent)
	g.queueBroadcast(&ServerEvent{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Message:     &msg,
		SessionId:   msg.SessionId,
	})
}

func (g *Gateway) NotifyMessageEdited(sessionId, messageId int, plaintext string) {
	g.queueBroadcast(&ServerEvent{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Edited: &MessageEdited{
			SessionId: sessionId,
			MessageId: messageId,
			Plaintext: plaintext,
		},
		SessionId: sessionId,
	})
}

func (g *Gateway) NotifyMessageDeleted(sessionId, messageId int) {
	g.queueBroadcast(&ServerEvent{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Deleted: &MessageDeleted{
			SessionId: sessionId,
			MessageId: messageId,
		},
		SessionId: sessionId,
	})
}

// NotifyRequestUpdate is broadcast to every connection: the affected
// users may not share a room yet.
func (g *Gateway) NotifyRequestUpdate(requestId int, status string, sessionId int) {
	g.queueBroadcast(&ServerEvent{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Request: &RequestUpdate{
			RequestId: requestId,
			Status:    status,
			SessionId: sessionId,
		},
	})
}

func (g *Gateway) OnlineUserIds() []int {
	return g.presence.OnlineUserIds()
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	close(g.stop)

	select {
	case <-g.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
