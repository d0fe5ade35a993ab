package store

import (
	"database/sql"
	"time"
)

// Well-known kv keys.
const (
	KeySeenMessages     = "seen_message_ids"
	KeyLastConversation = "last_conversation"
)

// KVSet stores a small bounded value under key.
func (db *DB) KVSet(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// KVGet retrieves a value. A missing key returns "" with no error.
func (db *DB) KVGet(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
