package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (db *PgRepository) CreateAccount(username string) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO users (username, created_at, updated_at) "+
			"VALUES ($1, $2, $2) RETURNING id, username, profile_pic, status, created_at, updated_at",
		username,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.ProfilePic,
		&u.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return User{}, ErrDuplicateUsername
	}

	return u, err
}

func (db *PgRepository) GetAccountById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, profile_pic, status, created_at, updated_at FROM users "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.ProfilePic,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgRepository) GetAccountByUsername(username string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, profile_pic, status, created_at, updated_at FROM users "+
			"WHERE username = $1 LIMIT 1",
		username,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.ProfilePic,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	return user, err
}

func (db *PgRepository) UpdateAccountStatus(userId int, status string) (User, error) {
	res := db.conn.QueryRow(
		"UPDATE users SET status = $2, updated_at = $3 "+
			"WHERE id = $1 RETURNING id, username, profile_pic, status, created_at, updated_at",
		userId,
		status,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Username,
		&u.ProfilePic,
		&u.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, err
}

func (db *PgRepository) CreateRefreshToken(userId int, tokenHash []byte, expiresAt time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) "+
			"VALUES ($1, $2, $3, $4)",
		userId,
		tokenHash,
		expiresAt,
		time.Now().UTC(),
	)

	return err
}

func (db *PgRepository) GetRefreshToken(tokenHash []byte) (RefreshToken, error) {
	row := db.conn.QueryRow(
		"SELECT id, user_id, token_hash, expires_at, revoked_at, created_at "+
			"FROM refresh_tokens WHERE token_hash = $1 LIMIT 1",
		tokenHash,
	)

	var rt RefreshToken
	err := row.Scan(
		&rt.Id,
		&rt.UserId,
		&rt.TokenHash,
		&rt.ExpiresAt,
		&rt.RevokedAt,
		&rt.CreatedAt,
	)

	return rt, err
}

// RevokeRefreshToken is the single exclusive gate for rotation: the
// conditional update succeeds for at most one concurrent caller.
func (db *PgRepository) RevokeRefreshToken(tokenHash []byte) (int64, error) {
	res, err := db.conn.Exec(
		"UPDATE refresh_tokens SET revoked_at = $2 "+
			"WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2",
		tokenHash,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (db *PgRepository) GetPendingRequest(senderId, recipientId int) (ChatRequest, error) {
	row := db.conn.QueryRow(
		"SELECT id, sender_id, recipient_id, status, created_at, updated_at FROM chat_requests "+
			"WHERE sender_id = $1 AND recipient_id = $2 AND status = $3 LIMIT 1",
		senderId,
		recipientId,
		RequestPending,
	)

	var cr ChatRequest
	err := row.Scan(
		&cr.Id,
		&cr.SenderId,
		&cr.RecipientId,
		&cr.Status,
		&cr.CreatedAt,
		&cr.UpdatedAt,
	)

	return cr, err
}

func (db *PgRepository) CreateRequest(senderId, recipientId int) (ChatRequest, error) {
	res := db.conn.QueryRow(
		"INSERT INTO chat_requests (sender_id, recipient_id, status, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, sender_id, recipient_id, status, created_at, updated_at",
		senderId,
		recipientId,
		RequestPending,
		time.Now().UTC(),
	)

	var cr ChatRequest
	err := res.Scan(
		&cr.Id,
		&cr.SenderId,
		&cr.RecipientId,
		&cr.Status,
		&cr.CreatedAt,
		&cr.UpdatedAt,
	)

	return cr, err
}

func (db *PgRepository) GetRequest(id int) (ChatRequest, error) {
	row := db.conn.QueryRow(
		"SELECT id, sender_id, recipient_id, status, created_at, updated_at FROM chat_requests "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var cr ChatRequest
	err := row.Scan(
		&cr.Id,
		&cr.SenderId,
		&cr.RecipientId,
		&cr.Status,
		&cr.CreatedAt,
		&cr.UpdatedAt,
	)

	return cr, err
}

func (db *PgRepository) UpdateRequestStatus(id int, status string) error {
	_, err := db.conn.Exec(
		"UPDATE chat_requests SET status = $2, updated_at = $3 WHERE id = $1",
		id,
		status,
		time.Now().UTC(),
	)

	return err
}

func (db *PgRepository) ListRequests(userId int) ([]ChatRequest, error) {
	rows, err := db.conn.Query(
		"SELECT cr.id, cr.sender_id, cr.recipient_id, u1.username, u2.username, cr.status, cr.created_at, cr.updated_at "+
			"FROM chat_requests cr "+
			"JOIN users u1 ON u1.id = cr.sender_id "+
			"JOIN users u2 ON u2.id = cr.recipient_id "+
			"WHERE cr.sender_id = $1 OR cr.recipient_id = $1 "+
			"ORDER BY cr.created_at DESC",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests = make([]ChatRequest, 0)
	for rows.Next() {
		var cr ChatRequest
		if err = rows.Scan(
			&cr.Id,
			&cr.SenderId,
			&cr.RecipientId,
			&cr.Sender,
			&cr.Recipient,
			&cr.Status,
			&cr.CreatedAt,
			&cr.UpdatedAt,
		); err != nil {
			break
		}

		requests = append(requests, cr)
	}

	return requests, err
}

func (db *PgRepository) GetSessionByPair(userA, userB int) (ChatSession, error) {
	row := db.conn.QueryRow(
		"SELECT id, user_a, user_b, created_at FROM chat_sessions "+
			"WHERE user_a = $1 AND user_b = $2 LIMIT 1",
		userA,
		userB,
	)

	var cs ChatSession
	err := row.Scan(
		&cs.Id,
		&cs.UserA,
		&cs.UserB,
		&cs.CreatedAt,
	)

	return cs, err
}

func (db *PgRepository) CreateSession(userA, userB int) (ChatSession, error) {
	res := db.conn.QueryRow(
		"INSERT INTO chat_sessions (user_a, user_b, created_at) "+
			"VALUES ($1, $2, $3) RETURNING id, user_a, user_b, created_at",
		userA,
		userB,
		time.Now().UTC(),
	)

	var cs ChatSession
	err := res.Scan(
		&cs.Id,
		&cs.UserA,
		&cs.UserB,
		&cs.CreatedAt,
	)

	return cs, err
}

func (db *PgRepository) IsParticipant(sessionId, userId int) bool {
	res := db.conn.QueryRow(
		"SELECT id FROM chat_sessions WHERE id = $1 AND (user_a = $2 OR user_b = $2) LIMIT 1",
		sessionId,
		userId,
	)

	var id int
	err := res.Scan(&id)

	return err == nil
}

func (db *PgRepository) ListSessions(userId int) ([]SessionSummary, error) {
	query := `
		SELECT cs.id,
				CASE WHEN cs.user_a = $1 THEN u2.id ELSE u1.id END AS other_id,
				CASE WHEN cs.user_a = $1 THEN u2.username ELSE u1.username END AS other_username,
				CASE WHEN cs.user_a = $1 THEN u2.profile_pic ELSE u1.profile_pic END AS other_profile_pic,
				(
					SELECT COUNT(*) FROM messages m
					WHERE m.session_id = cs.id AND m.sender_id <> $1 AND NOT m.seen
				) AS unread_count,
				cs.created_at
		FROM chat_sessions cs
		JOIN users u1 ON u1.id = cs.user_a
		JOIN users u2 ON u2.id = cs.user_b
		WHERE cs.user_a = $1 OR cs.user_b = $1
		ORDER BY cs.created_at DESC;
`

	rows, err := db.conn.Query(query, userId)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions = make([]SessionSummary, 0)
	for rows.Next() {
		var s SessionSummary
		if err := rows.Scan(
			&s.SessionId,
			&s.OtherId,
			&s.OtherUsername,
			&s.OtherPic,
			&s.UnreadCount,
			&s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		sessions = append(sessions, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return sessions, nil
}

func (db *PgRepository) CreateMessage(msg Message) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (session_id, sender_id, parent_id, forwarded_from_id, ciphertext, iv, auth_tag, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) "+
			"RETURNING id, session_id, sender_id, parent_id, forwarded_from_id, ciphertext, iv, auth_tag, delivered, seen, deleted, created_at, updated_at",
		msg.SessionId,
		msg.SenderId,
		msg.ParentId,
		msg.ForwardedFromId,
		msg.Ciphertext,
		msg.IV,
		msg.AuthTag,
		time.Now().UTC(),
	)

	var m Message
	err := res.Scan(
		&m.Id,
		&m.SessionId,
		&m.SenderId,
		&m.ParentId,
		&m.ForwardedFromId,
		&m.Ciphertext,
		&m.IV,
		&m.AuthTag,
		&m.Delivered,
		&m.Seen,
		&m.Deleted,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	return m, err
}

func (db *PgRepository) GetMessage(id int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT id, session_id, sender_id, parent_id, forwarded_from_id, ciphertext, iv, auth_tag, delivered, seen, deleted, created_at, updated_at "+
			"FROM messages WHERE id = $1 LIMIT 1",
		id,
	)

	var m Message
	err := row.Scan(
		&m.Id,
		&m.SessionId,
		&m.SenderId,
		&m.ParentId,
		&m.ForwardedFromId,
		&m.Ciphertext,
		&m.IV,
		&m.AuthTag,
		&m.Delivered,
		&m.Seen,
		&m.Deleted,
		&m.CreatedAt,
		&m.UpdatedAt,
	)

	return m, err
}

func (db *PgRepository) UpdateMessageBody(id int, ciphertext, iv, authTag []byte) error {
	_, err := db.conn.Exec(
		"UPDATE messages SET ciphertext = $2, iv = $3, auth_tag = $4, deleted = FALSE, updated_at = $5 "+
			"WHERE id = $1",
		id,
		ciphertext,
		iv,
		authTag,
		time.Now().UTC(),
	)

	return err
}

func (db *PgRepository) MarkMessageDeleted(id int) error {
	_, err := db.conn.Exec(
		"UPDATE messages SET deleted = TRUE, updated_at = $2 WHERE id = $1",
		id,
		time.Now().UTC(),
	)

	return err
}

func (db *PgRepository) MarkDelivered(id int) error {
	_, err := db.conn.Exec(
		"UPDATE messages SET delivered = TRUE WHERE id = $1",
		id,
	)

	return err
}

func (db *PgRepository) MarkMessageSeen(id int) error {
	_, err := db.conn.Exec(
		"UPDATE messages SET seen = TRUE WHERE id = $1",
		id,
	)

	return err
}

func (db *PgRepository) MarkSessionSeen(sessionId, readerId int) error {
	_, err := db.conn.Exec(
		"UPDATE messages SET seen = TRUE WHERE session_id = $1 AND sender_id <> $2",
		sessionId,
		readerId,
	)

	return err
}

func (db *PgRepository) GetMessages(sessionId, beforeId, limit int) ([]Message, error) {
	var upper int = 1<<31 - 1
	if beforeId > 0 {
		upper = beforeId - 1
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, session_id, sender_id, parent_id, forwarded_from_id, ciphertext, iv, auth_tag, delivered, seen, deleted, created_at, updated_at "+
			"FROM messages WHERE session_id = $1 AND id <= $2 ORDER BY id DESC LIMIT $3",
		sessionId,
		upper,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err = rows.Scan(
			&m.Id,
			&m.SessionId,
			&m.SenderId,
			&m.ParentId,
			&m.ForwardedFromId,
			&m.Ciphertext,
			&m.IV,
			&m.AuthTag,
			&m.Delivered,
			&m.Seen,
			&m.Deleted,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			break
		}

		messages = append(messages, m)
	}

	return messages, err
}

func (db *PgRepository) SearchMessages(sessionId int, query string, limit int) ([]int, error) {
	rows, err := db.conn.Query(
		"SELECT message_id FROM message_search "+
			"WHERE session_id = $1 AND body_tsv @@ plainto_tsquery('simple', $2) "+
			"ORDER BY message_id DESC LIMIT $3",
		sessionId,
		query,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids = make([]int, 0, limit)
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			break
		}

		ids = append(ids, id)
	}

	return ids, err
}
