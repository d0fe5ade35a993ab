package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// UpsertMessage inserts or updates a message (idempotent on conversation_id + msg_id).
func (db *DB) UpsertMessage(m *Message) error {
	attachments, err := json.Marshal(m.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}
	if m.Attachments == nil {
		attachments = []byte("[]")
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO messages (conversation_id, msg_id, sender_id, sender_name, body, attachments, created_at, row_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			body = excluded.body,
			attachments = excluded.attachments,
			row_updated_at = excluded.row_updated_at`,
		m.ConversationID, m.ID, m.SenderID, m.SenderName, m.Body, string(attachments), m.CreatedAt, now)
	return err
}

// UpsertMessages writes a batch of messages in one transaction.
func (db *DB) UpsertMessages(conversationID string, msgs []Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		attachments, err := json.Marshal(m.Attachments)
		if err != nil {
			return fmt.Errorf("marshal attachments: %w", err)
		}
		if m.Attachments == nil {
			attachments = []byte("[]")
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (conversation_id, msg_id, sender_id, sender_name, body, attachments, created_at, row_updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
				sender_name = excluded.sender_name,
				body = excluded.body,
				attachments = excluded.attachments,
				row_updated_at = excluded.row_updated_at`,
			conversationID, m.ID, m.SenderID, m.SenderName, m.Body, string(attachments), m.CreatedAt, now); err != nil {
			return fmt.Errorf("upsert message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// ListMessages returns all messages for a conversation ordered by created_at
// ascending, ties broken by insertion (rowid) order.
func (db *DB) ListMessages(conversationID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT conversation_id, msg_id, sender_id, sender_name, body, attachments, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var attachments string
		if err := rows.Scan(&m.ConversationID, &m.ID, &m.SenderID, &m.SenderName, &m.Body, &attachments, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments for %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
