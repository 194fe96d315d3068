package chat

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securechat/internal/database"
	"securechat/internal/testutil"
)

func newTestManager(t *testing.T) (*SessionManager, *database.MockRepository) {
	t.Helper()
	mockRepo := &database.MockRepository{}
	t.Cleanup(func() { mockRepo.AssertExpectations(t) })
	return NewSessionManager(testutil.TestLogger(t), mockRepo), mockRepo
}

func TestCreateRequest(t *testing.T) {
	t.Run("unknown recipient", func(t *testing.T) {
		sm, mockRepo := newTestManager(t)
		mockRepo.On("GetAccountByUsername", "ghost").Return(database.User{}, sql.ErrNoRows).Once()

		_, err := sm.CreateRequest(1, "ghost")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("self request", func(t *testing.T) {
		sm, mockRepo := newTestManager(t)
		mockRepo.On("GetAccountByUsername", "alice").Return(database.User{Id: 1, Username: "alice"}, nil).Once()

		_, err := sm.CreateRequest(1, "alice")
		assert.ErrorIs(t, err, ErrSelfRequest)
	})

	t.Run("idempotent while pending", func(t *testing.T) {
		sm, mockRepo := newTestManager(t)
		mockRepo.On("GetAccountByUsername", "bob").Return(database.User{Id: 2, Username: "bob"}, nil).Once()
		mockRepo.On("GetPendingRequest", 1, 2).Return(database.ChatRequest{
			Id:          5,
			SenderId:    1,
			RecipientId: 2,
			Status:      database.RequestPending,
		}, nil).Once()

		// CreateRequest must not be called; the existing id comes back
		req, err := sm.CreateRequest(1, "bob")
		require.NoError(t, err)
		assert.Equal(t, 5, req.Id)
		assert.Equal(t, database.RequestPending, req.Status)
	})

	t.Run("creates a new pending request", func(t *testing.T) {
		sm, mockRepo := newTestManager(t)
		mockRepo.On("GetAccountByUsername", "bob").Return(database.User{Id: 2, Username: "bob"}, nil).Once()
		mockRepo.On("GetPendingRequest", 1, 2).Return(database.ChatRequest{}, sql.ErrNoRows).Once()
		mockRepo.On("CreateRequest", 1, 2).Return(database.ChatRequest{
			Id:          6,
			SenderId:    1,
			RecipientId: 2,
			Status:      database.RequestPending,
			CreatedAt:   time.Now().UTC(),
		}, nil).Once()

		req, err := sm.CreateRequest(1, "bob")
		require.NoError(t, err)
		assert.Equal(t, 6, req.Id)
		assert.Equal(t, database.RequestPending, req.Status)
	})
}

func TestRespond(t *testing.T) {
	pending := database.ChatRequest{
		Id:          5,
		SenderId:    2,
		RecipientId: 1,
		Status:      database.RequestPending,
	}

	t.Run("unknown request", func(t *testing.T) {
		sm, mockRepo := newTestManager(t)
		mockRepo.On("GetRequest", 5).Return(database.ChatRequest{}, sql.ErrNoRows).Once()

		_, _, err := sm.Respond(5, 1, "accept")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("only the recipient may respond", func(t *testing.T) {
		sm, mockRepo := newTestManager(t)
		mockRepo.On("GetRequest", 5).Return(pending, nil).Once()

		_, _, err := sm.Respond(5, 2, "accept")
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("non-pending request is terminal", func(t *testing.T) {
		sm, mockRepo := newTestManager(t)
		declined := pending
		declined.Status = database.RequestDeclined
		mockRepo.On("GetRequest", 5).Return(declined, nil).Once()

		_, _, err := sm.Respond(5, 1, "accept")
		assert.ErrorIs(t, err, ErrNotPending)
	})

	t.Run("accept creates a canonical session", func(t *testing.T) {
		sm, mockRepo := newTestManager(t)
		mockRepo.On("GetRequest", 5).Return(pending, nil).Once()
		mockRepo.On("UpdateRequestStatus", 5, database.RequestAccepted).Return(nil).Once()
		// the pair is canonicalized to (min, max) even though the
		// request was sent from the higher id
		mockRepo.On("GetSessionByPair", 1, 2).Return(database.ChatSession{}, sql.ErrNoRows).Once()
		mockRepo.On("CreateSession", 1, 2).Return(database.ChatSession{Id: 9, UserA: 1, UserB: 2}, nil).Once()

		status, sessionId, err := sm.Respond(5, 1, "accept")
		require.NoError(t, err)
		assert.Equal(t, database.RequestAccepted, status)
		assert.Equal(t, 9, sessionId)
	})

	t.Run("accept reuses an existing session for the pair", func(t *testing.T) {
		sm, mockRepo := newTestManager(t)
		mockRepo.On("GetRequest", 5).Return(pending, nil).Once()
		mockRepo.On("UpdateRequestStatus", 5, database.RequestAccepted).Return(nil).Once()
		mockRepo.On("GetSessionByPair", 1, 2).Return(database.ChatSession{Id: 9, UserA: 1, UserB: 2}, nil).Once()

		status, sessionId, err := sm.Respond(5, 1, "accept")
		require.NoError(t, err)
		assert.Equal(t, database.RequestAccepted, status)
		assert.Equal(t, 9, sessionId, "expected the existing session id, not a duplicate")
	})

	t.Run("decline creates no session", func(t *testing.T) {
		sm, mockRepo := newTestManager(t)
		mockRepo.On("GetRequest", 5).Return(pending, nil).Once()
		mockRepo.On("UpdateRequestStatus", 5, database.RequestDeclined).Return(nil).Once()

		status, sessionId, err := sm.Respond(5, 1, "decline")
		require.NoError(t, err)
		assert.Equal(t, database.RequestDeclined, status)
		assert.Zero(t, sessionId)
	})
}

func TestListSessions(t *testing.T) {
	sm, mockRepo := newTestManager(t)
	mockRepo.On("ListSessions", 1).Return([]database.SessionSummary{
		{SessionId: 9, OtherId: 2, OtherUsername: "bob", UnreadCount: 3},
	}, nil).Once()

	sessions, err := sm.ListSessions(1)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 9, sessions[0].Id)
	assert.Equal(t, "bob", sessions[0].OtherUsername)
	assert.Equal(t, 3, sessions[0].UnreadCount)
}

func TestCanonicalPair(t *testing.T) {
	a, b := canonicalPair(7, 3)
	assert.Equal(t, 3, a)
	assert.Equal(t, 7, b)

	a, b = canonicalPair(3, 7)
	assert.Equal(t, 3, a)
	assert.Equal(t, 7, b)
}
