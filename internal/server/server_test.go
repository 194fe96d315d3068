package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechat/internal/chat"
	"securechat/internal/crypto"
	"securechat/internal/database"
	"securechat/internal/stats"
	"securechat/internal/testutil"
	"securechat/internal/types"
)

func newTestGateway(t *testing.T, db database.Repository, su *stats.MockStats) *Gateway {
	t.Helper()

	logger := testutil.TestLogger(t)
	cipher, err := crypto.NewCipher(nil)
	require.NoError(t, err, "failed to create cipher")

	store := chat.NewMessageStore(logger, db, cipher, nil)
	g, err := NewGateway(logger, store, su)
	require.NoError(t, err, "failed to create test gateway")

	return g
}

func newTestClient(t *testing.T, g *Gateway, userId int, username, connId string) *Client {
	t.Helper()

	return NewClient(types.User{Id: userId, Username: username}, connId, nil, g, testutil.TestLogger(t))
}

func recvEvent(t *testing.T, c *Client) *ServerEvent {
	t.Helper()

	select {
	case ev := <-c.send:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()

	select {
	case ev := <-c.send:
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewGateway(t *testing.T) {
	db := &database.MockRepository{}
	defer db.AssertExpectations(t)

	su := stats.NewMockStats()
	g := newTestGateway(t, db, su)

	assert.NotNil(t, g.presence, "expected presence registry to be initialized")
	assert.NotNil(t, g.clients, "expected clients map to be initialized")
	assert.NotNil(t, g.rooms, "expected rooms map to be initialized")
	assert.NotNil(t, g.RegisterChan, "expected RegisterChan to be initialized")
	assert.NotNil(t, g.eventChan, "expected eventChan to be initialized")
	assert.NotNil(t, g.broadcastChan, "expected broadcastChan to be initialized")

	for _, name := range []string{stats.ActiveConnections, stats.ActiveRooms, stats.MessagesSent, stats.EventsBroadcast} {
		_, ok := su.Counts[name]
		assert.True(t, ok, "expected metric %q to be registered", name)
	}
}

func TestGatewayAddRemoveClient(t *testing.T) {
	su := stats.NewMockStats()
	g := newTestGateway(t, &database.MockRepository{}, su)

	alice := newTestClient(t, g, 1, "alice", "conn-a")
	bob := newTestClient(t, g, 2, "bob", "conn-b")

	g.addClient(bob)
	g.addClient(alice)

	assert.True(t, g.presence.Online(1), "expected alice online after register")
	assert.Equal(t, 2, su.Get(stats.ActiveConnections), "expected two active connections")

	// bob sees alice come online, alice's own connection is skipped
	ev := recvEvent(t, bob)
	require.NotNil(t, ev.Presence, "expected presence event")
	assert.Equal(t, 1, ev.Presence.UserId)
	assert.True(t, ev.Presence.Online)
	assertNoEvent(t, alice)

	// a second device for alice must not re-announce her
	alice2 := newTestClient(t, g, 1, "alice", "conn-a2")
	g.addClient(alice2)
	assertNoEvent(t, bob)

	g.removeClient(alice)
	assert.True(t, g.presence.Online(1), "expected alice online while second device connected")
	assertNoEvent(t, bob)

	g.removeClient(alice2)
	assert.False(t, g.presence.Online(1), "expected alice offline after last device disconnected")
	ev = recvEvent(t, bob)
	require.NotNil(t, ev.Presence, "expected presence event")
	assert.Equal(t, 1, ev.Presence.UserId)
	assert.False(t, ev.Presence.Online)

	assert.Equal(t, 1, su.Get(stats.ActiveConnections), "expected one active connection left")
}

func TestGatewayHandleJoin(t *testing.T) {
	su := stats.NewMockStats()
	g := newTestGateway(t, &database.MockRepository{}, su)

	alice := newTestClient(t, g, 1, "alice", "conn-a")
	g.addClient(alice)

	g.handleJoin(&ClientEvent{
		BaseMessage: BaseMessage{Id: 7},
		Join:        &Join{SessionId: 3},
		UserId:      1,
		client:      alice,
	})

	_, ok := g.rooms[3][alice]
	assert.True(t, ok, "expected alice in room 3")
	assert.Equal(t, 1, su.Get(stats.ActiveRooms), "expected one active room")

	ev := recvEvent(t, alice)
	require.NotNil(t, ev.Response, "expected ack response")
	assert.Equal(t, 7, ev.Id, "expected ack to echo the event id")
	assert.Equal(t, 200, ev.Response.ResponseCode)

	g.removeClient(alice)
	assert.Empty(t, g.rooms, "expected empty room to be unloaded")
	assert.Equal(t, 0, su.Get(stats.ActiveRooms), "expected no active rooms")
}

func TestGatewayHandleTyping(t *testing.T) {
	g := newTestGateway(t, &database.MockRepository{}, stats.NewMockStats())

	alice := newTestClient(t, g, 1, "alice", "conn-a")
	bob := newTestClient(t, g, 2, "bob", "conn-b")
	outsider := newTestClient(t, g, 3, "carol", "conn-c")

	g.clients[alice] = struct{}{}
	g.clients[bob] = struct{}{}
	g.clients[outsider] = struct{}{}
	g.rooms[3] = map[*Client]struct{}{alice: {}, bob: {}}

	g.handleTyping(&ClientEvent{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Typing:      &Typing{SessionId: 3, IsTyping: true},
		UserId:      1,
		client:      alice,
	})

	ev := recvEvent(t, bob)
	require.NotNil(t, ev.Typing, "expected typing event")
	assert.Equal(t, 3, ev.Typing.SessionId)
	assert.Equal(t, 1, ev.Typing.UserId)
	assert.True(t, ev.Typing.IsTyping)

	assertNoEvent(t, alice)
	assertNoEvent(t, outsider)
}

func TestGatewayHandleSent(t *testing.T) {
	db := &database.MockRepository{}
	db.On("MarkDelivered", 9).Return(nil).Once()
	defer db.AssertExpectations(t)

	g := newTestGateway(t, db, stats.NewMockStats())

	alice := newTestClient(t, g, 1, "alice", "conn-a")
	bob := newTestClient(t, g, 2, "bob", "conn-b")
	g.rooms[3] = map[*Client]struct{}{alice: {}, bob: {}}

	g.handleSent(&ClientEvent{
		BaseMessage: BaseMessage{Timestamp: Now()},
		Sent:        &Sent{SessionId: 3, MessageId: 9},
		UserId:      2,
		client:      bob,
	})

	ev := recvEvent(t, alice)
	require.NotNil(t, ev.Delivered, "expected delivery event")
	assert.Equal(t, 3, ev.Delivered.SessionId)
	assert.Equal(t, 9, ev.Delivered.MessageId)
	assertNoEvent(t, bob)
}

func TestGatewayHandleSeen(t *testing.T) {
	t.Run("single message", func(t *testing.T) {
		db := &database.MockRepository{}
		db.On("MarkMessageSeen", 9).Return(nil).Once()
		defer db.AssertExpectations(t)

		g := newTestGateway(t, db, stats.NewMockStats())

		alice := newTestClient(t, g, 1, "alice", "conn-a")
		bob := newTestClient(t, g, 2, "bob", "conn-b")
		g.rooms[3] = map[*Client]struct{}{alice: {}, bob: {}}

		g.handleSeen(&ClientEvent{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Seen:        &Seen{SessionId: 3, MessageId: 9},
			UserId:      2,
			client:      bob,
		})

		ev := recvEvent(t, alice)
		require.NotNil(t, ev.Seen, "expected read receipt")
		assert.Equal(t, 9, ev.Seen.MessageId)
		assert.Equal(t, 2, ev.Seen.By)
	})

	t.Run("whole session", func(t *testing.T) {
		db := &database.MockRepository{}
		db.On("MarkSessionSeen", 3, 2).Return(nil).Once()
		defer db.AssertExpectations(t)

		g := newTestGateway(t, db, stats.NewMockStats())

		alice := newTestClient(t, g, 1, "alice", "conn-a")
		bob := newTestClient(t, g, 2, "bob", "conn-b")
		g.rooms[3] = map[*Client]struct{}{alice: {}, bob: {}}

		g.handleSeen(&ClientEvent{
			BaseMessage: BaseMessage{Timestamp: Now()},
			Seen:        &Seen{SessionId: 3},
			UserId:      2,
			client:      bob,
		})

		ev := recvEvent(t, alice)
		require.NotNil(t, ev.Seen, "expected read receipt")
		assert.Equal(t, 0, ev.Seen.MessageId, "expected no message id for session-wide receipt")
		assert.Equal(t, 2, ev.Seen.By)
	})
}

func TestGatewayNotifyNewMessage(t *testing.T) {
	su := stats.NewMockStats()
	g := newTestGateway(t, &database.MockRepository{}, su)
	go g.Run()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		g.Shutdown(ctx)
	}()

	alice := newTestClient(t, g, 1, "alice", "conn-a")
	g.RegisterClient(alice)

	g.eventChan <- &ClientEvent{
		BaseMessage: BaseMessage{Id: 1},
		Join:        &Join{SessionId: 3},
		UserId:      1,
		client:      alice,
	}
	ev := recvEvent(t, alice)
	require.NotNil(t, ev.Response, "expected join ack")

	g.NotifyNewMessage(types.Message{Id: 9, SessionId: 3, SenderId: 2, Plaintext: "hi"})

	ev = recvEvent(t, alice)
	require.NotNil(t, ev.Message, "expected message event")
	assert.Equal(t, 9, ev.Message.Id)
	assert.Equal(t, "hi", ev.Message.Plaintext)
	assert.Equal(t, 1, su.Get(stats.MessagesSent), "expected messages sent metric incremented")
}

func TestGatewayNotifyEditedAndDeleted(t *testing.T) {
	g := newTestGateway(t, &database.MockRepository{}, stats.NewMockStats())

	alice := newTestClient(t, g, 1, "alice", "conn-a")
	g.clients[alice] = struct{}{}
	g.rooms[3] = map[*Client]struct{}{alice: {}}

	g.NotifyMessageEdited(3, 9, "fixed")
	g.deliver(<-g.broadcastChan)
	ev := recvEvent(t, alice)
	require.NotNil(t, ev.Edited, "expected edit event")
	assert.Equal(t, "fixed", ev.Edited.Plaintext)

	g.NotifyMessageDeleted(3, 9)
	g.deliver(<-g.broadcastChan)
	ev = recvEvent(t, alice)
	require.NotNil(t, ev.Deleted, "expected delete event")
	assert.Equal(t, 9, ev.Deleted.MessageId)
}

func TestGatewayNotifyRequestUpdate(t *testing.T) {
	g := newTestGateway(t, &database.MockRepository{}, stats.NewMockStats())

	alice := newTestClient(t, g, 1, "alice", "conn-a")
	bob := newTestClient(t, g, 2, "bob", "conn-b")
	g.clients[alice] = struct{}{}
	g.clients[bob] = struct{}{}

	g.NotifyRequestUpdate(4, database.RequestAccepted, 3)
	g.deliver(<-g.broadcastChan)

	for _, c := range []*Client{alice, bob} {
		ev := recvEvent(t, c)
		require.NotNil(t, ev.Request, "expected request update")
		assert.Equal(t, 4, ev.Request.RequestId)
		assert.Equal(t, database.RequestAccepted, ev.Request.Status)
		assert.Equal(t, 3, ev.Request.SessionId)
	}
}

func TestGatewayShutdown(t *testing.T) {
	t.Run("successful shutdown", func(t *testing.T) {
		g := newTestGateway(t, &database.MockRepository{}, stats.NewMockStats())
		go g.Run()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		assert.NoError(t, g.Shutdown(ctx), "expected clean shutdown")
	})

	t.Run("fails with context deadline exceeded", func(t *testing.T) {
		g := newTestGateway(t, &database.MockRepository{}, stats.NewMockStats())
		// Run loop never started, done is never closed

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		assert.ErrorIs(t, g.Shutdown(ctx), context.DeadlineExceeded)
	})
}
