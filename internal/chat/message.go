package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"securechat/internal/cache"
	"securechat/internal/crypto"
	"securechat/internal/database"
	"securechat/internal/types"
)

// MaxPageLimit caps the page size of message listings.
const MaxPageLimit = 100

// MessageStore persists encrypted messages and enforces the
// edit/delete/forward/pagination rules.
type MessageStore struct {
	log    *log.Logger
	db     database.Repository
	cipher *crypto.Cipher
	cache  *cache.PageCache
}

func NewMessageStore(logger *log.Logger, db database.Repository, cipher *crypto.Cipher, pageCache *cache.PageCache) *MessageStore {
	return &MessageStore{
		log:    logger,
		db:     db,
		cipher: cipher,
		cache:  pageCache,
	}
}

// Send encrypts and stores a new message. The returned message carries
// the plaintext for immediate local display.
func (s *MessageStore) Send(ctx context.Context, sessionId, senderId int, text string, parentId, forwardFromId int) (types.Message, error) {
	if text == "" {
		return types.Message{}, ErrEmptyText
	}

	if !s.db.IsParticipant(sessionId, senderId) {
		return types.Message{}, ErrForbidden
	}

	if parentId > 0 {
		// The parent must exist; whether it belongs to the same
		// session is left to the caller, matching observed behavior.
		if _, err := s.db.GetMessage(parentId); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.Message{}, ErrNotFound
			}
			return types.Message{}, fmt.Errorf("lookup parent message: %w", err)
		}
	}

	ciphertext, iv, tag, err := s.cipher.Encrypt(text)
	if err != nil {
		return types.Message{}, fmt.Errorf("encrypt message: %w", err)
	}

	msg := database.Message{
		SessionId:       sessionId,
		SenderId:        senderId,
		ParentId:        nullableId(parentId),
		ForwardedFromId: nullableId(forwardFromId),
		Ciphertext:      ciphertext,
		IV:              iv,
		AuthTag:         tag,
	}

	created, err := s.db.CreateMessage(msg)
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	// historical pages are immutable; only the latest page changes
	s.cache.InvalidateLatest(ctx, sessionId)

	return toMessage(created, text), nil
}

// Edit re-encrypts a message with new text. Only the original sender
// may edit; editing clears the deleted flag.
func (s *MessageStore) Edit(messageId, requesterId int, newText string) (types.Message, error) {
	if newText == "" {
		return types.Message{}, ErrEmptyText
	}

	msg, err := s.db.GetMessage(messageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, ErrNotFound
		}
		return types.Message{}, fmt.Errorf("lookup message: %w", err)
	}

	if msg.SenderId != requesterId {
		return types.Message{}, ErrForbidden
	}

	ciphertext, iv, tag, err := s.cipher.Encrypt(newText)
	if err != nil {
		return types.Message{}, fmt.Errorf("encrypt message: %w", err)
	}

	if err := s.db.UpdateMessageBody(messageId, ciphertext, iv, tag); err != nil {
		return types.Message{}, fmt.Errorf("update message: %w", err)
	}

	return toMessage(msg, newText), nil
}

// SoftDelete hides a message's content while retaining the row. Only
// the original sender may delete.
func (s *MessageStore) SoftDelete(messageId, requesterId int) (types.Message, error) {
	msg, err := s.db.GetMessage(messageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, ErrNotFound
		}
		return types.Message{}, fmt.Errorf("lookup message: %w", err)
	}

	if msg.SenderId != requesterId {
		return types.Message{}, ErrForbidden
	}

	if err := s.db.MarkMessageDeleted(messageId); err != nil {
		return types.Message{}, fmt.Errorf("mark message deleted: %w", err)
	}

	msg.Deleted = true
	return toMessage(msg, ""), nil
}

// Forward copies an existing message's ciphertext into another session
// the requester participates in. The content is re-associated, not
// re-encrypted.
func (s *MessageStore) Forward(ctx context.Context, messageId, requesterId, toSessionId int) (types.Message, error) {
	orig, err := s.db.GetMessage(messageId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Message{}, ErrNotFound
		}
		return types.Message{}, fmt.Errorf("lookup message: %w", err)
	}

	if !s.db.IsParticipant(toSessionId, requesterId) {
		return types.Message{}, ErrForbidden
	}

	msg := database.Message{
		SessionId:       toSessionId,
		SenderId:        requesterId,
		ForwardedFromId: nullableId(messageId),
		Ciphertext:      orig.Ciphertext,
		IV:              orig.IV,
		AuthTag:         orig.AuthTag,
	}

	created, err := s.db.CreateMessage(msg)
	if err != nil {
		return types.Message{}, fmt.Errorf("create forwarded message: %w", err)
	}

	s.cache.InvalidateLatest(ctx, toSessionId)

	return toMessage(created, s.decrypt(created)), nil
}

// ListPage returns up to limit messages in ascending id order,
// restricted to ids strictly below beforeId when given. Pages are read
// through the cache, which stores raw ciphertext rows.
func (s *MessageStore) ListPage(ctx context.Context, sessionId, requesterId, limit, beforeId int) ([]types.Message, error) {
	if !s.db.IsParticipant(sessionId, requesterId) {
		return nil, ErrForbidden
	}

	if limit <= 0 {
		limit = cache.DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	rows, ok := s.cache.GetPage(ctx, sessionId, beforeId, limit)
	if !ok {
		var err error
		rows, err = s.db.GetMessages(sessionId, beforeId, limit)
		if err != nil {
			return nil, fmt.Errorf("get messages: %w", err)
		}
		s.cache.SetPage(ctx, sessionId, beforeId, limit, rows)
	}

	// rows arrive newest first; reverse into ascending id order
	messages := make([]types.Message, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		messages = append(messages, toMessage(rows[i], s.decrypt(rows[i])))
	}

	return messages, nil
}

// MarkSeen flips the seen flag on every message in the session
// authored by someone other than the requester.
func (s *MessageStore) MarkSeen(sessionId, requesterId int) error {
	return s.db.MarkSessionSeen(sessionId, requesterId)
}

// MarkSeenOne flips the seen flag on a single message.
func (s *MessageStore) MarkSeenOne(messageId int) error {
	return s.db.MarkMessageSeen(messageId)
}

// MarkDelivered flips the delivered flag on a single message.
func (s *MessageStore) MarkDelivered(messageId int) error {
	return s.db.MarkDelivered(messageId)
}

// Search returns matching message ids from the plaintext search index.
// The index is populated out of band; an empty index yields empty
// results.
func (s *MessageStore) Search(sessionId, requesterId int, query string, limit int) ([]int, error) {
	if !s.db.IsParticipant(sessionId, requesterId) {
		return nil, ErrForbidden
	}

	if query == "" {
		return []int{}, nil
	}

	if limit <= 0 {
		limit = cache.DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}

	return s.db.SearchMessages(sessionId, query, limit)
}

// decrypt recovers a message's plaintext for reading. Deleted messages
// and undecryptable content both surface as the empty string; a
// decrypt failure never fails the read path.
func (s *MessageStore) decrypt(m database.Message) string {
	if m.Deleted {
		return ""
	}

	plaintext, err := s.cipher.Decrypt(m.Ciphertext, m.IV, m.AuthTag)
	if err != nil {
		s.log.Printf("decrypt message %d: %v", m.Id, err)
		return ""
	}

	return plaintext
}

func nullableId(id int) sql.NullInt64 {
	if id <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(id), Valid: true}
}

func toMessage(m database.Message, plaintext string) types.Message {
	return types.Message{
		Id:              m.Id,
		SessionId:       m.SessionId,
		SenderId:        m.SenderId,
		ParentId:        int(m.ParentId.Int64),
		ForwardedFromId: int(m.ForwardedFromId.Int64),
		Plaintext:       plaintext,
		Delivered:       m.Delivered,
		Seen:            m.Seen,
		Deleted:         m.Deleted,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
