package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRepository) CreateAccount(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountById(id int) (User, error) {
	args := m.Called(id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) GetAccountByUsername(username string) (User, error) {
	args := m.Called(username)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) UpdateAccountStatus(userId int, status string) (User, error) {
	args := m.Called(userId, status)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockRepository) CreateRefreshToken(userId int, tokenHash []byte, expiresAt time.Time) error {
	args := m.Called(userId, tokenHash, expiresAt)
	return args.Error(0)
}
func (m *MockRepository) GetRefreshToken(tokenHash []byte) (RefreshToken, error) {
	args := m.Called(tokenHash)
	return args.Get(0).(RefreshToken), args.Error(1)
}
func (m *MockRepository) RevokeRefreshToken(tokenHash []byte) (int64, error) {
	args := m.Called(tokenHash)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockRepository) GetPendingRequest(senderId, recipientId int) (ChatRequest, error) {
	args := m.Called(senderId, recipientId)
	return args.Get(0).(ChatRequest), args.Error(1)
}
func (m *MockRepository) CreateRequest(senderId, recipientId int) (ChatRequest, error) {
	args := m.Called(senderId, recipientId)
	return args.Get(0).(ChatRequest), args.Error(1)
}
func (m *MockRepository) GetRequest(id int) (ChatRequest, error) {
	args := m.Called(id)
	return args.Get(0).(ChatRequest), args.Error(1)
}
func (m *MockRepository) UpdateRequestStatus(id int, status string) error {
	args := m.Called(id, status)
	return args.Error(0)
}
func (m *MockRepository) ListRequests(userId int) ([]ChatRequest, error) {
	args := m.Called(userId)
	return args.Get(0).([]ChatRequest), args.Error(1)
}
func (m *MockRepository) GetSessionByPair(userA, userB int) (ChatSession, error) {
	args := m.Called(userA, userB)
	return args.Get(0).(ChatSession), args.Error(1)
}
func (m *MockRepository) CreateSession(userA, userB int) (ChatSession, error) {
	args := m.Called(userA, userB)
	return args.Get(0).(ChatSession), args.Error(1)
}
func (m *MockRepository) IsParticipant(sessionId, userId int) bool {
	args := m.Called(sessionId, userId)
	return args.Bool(0)
}
func (m *MockRepository) ListSessions(userId int) ([]SessionSummary, error) {
	args := m.Called(userId)
	return args.Get(0).([]SessionSummary), args.Error(1)
}
func (m *MockRepository) CreateMessage(msg Message) (Message, error) {
	args := m.Called(msg)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) GetMessage(id int) (Message, error) {
	args := m.Called(id)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRepository) UpdateMessageBody(id int, ciphertext, iv, authTag []byte) error {
	args := m.Called(id, ciphertext, iv, authTag)
	return args.Error(0)
}
func (m *MockRepository) MarkMessageDeleted(id int) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockRepository) MarkDelivered(id int) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockRepository) MarkMessageSeen(id int) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockRepository) MarkSessionSeen(sessionId, readerId int) error {
	args := m.Called(sessionId, readerId)
	return args.Error(0)
}
func (m *MockRepository) GetMessages(sessionId, beforeId, limit int) ([]Message, error) {
	args := m.Called(sessionId, beforeId, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRepository) SearchMessages(sessionId int, query string, limit int) ([]int, error) {
	args := m.Called(sessionId, query, limit)
	return args.Get(0).([]int), args.Error(1)
}
