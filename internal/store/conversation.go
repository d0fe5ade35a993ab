package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Persistable conversation flag columns. persistConversationFlag-style
// mutations are restricted to this set.
var flagColumns = map[string]bool{
	"unread_count": true,
	"notes":        true,
	"labels":       true,
	"ad_id":        true,
}

// UpsertConversation inserts or updates a conversation record (idempotent on id).
func (db *DB) UpsertConversation(c *Conversation) error {
	labels, err := json.Marshal(emptyIfNil(c.Labels))
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	now := time.Now().UnixMilli()
	_, err = db.Exec(`
		INSERT INTO conversations (id, page_id, participant_id, participant_name, snippet, unread_count, updated_at, ad_id, notes, labels, row_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			page_id = excluded.page_id,
			participant_id = excluded.participant_id,
			participant_name = excluded.participant_name,
			snippet = excluded.snippet,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at,
			ad_id = CASE WHEN excluded.ad_id != '' THEN excluded.ad_id ELSE conversations.ad_id END,
			row_updated_at = excluded.row_updated_at`,
		c.ID, c.PageID, c.ParticipantID, c.ParticipantName, c.Snippet, c.UnreadCount, c.UpdatedAt, c.AdID, c.Notes, string(labels), now)
	return err
}

// ListConversations returns conversations for the given pages sorted by
// updated_at descending.
func (db *DB) ListConversations(pageIDs []string) ([]Conversation, error) {
	if len(pageIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(pageIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(pageIDs))
	for i, id := range pageIDs {
		args[i] = id
	}

	rows, err := db.Query(`
		SELECT id, page_id, participant_id, participant_name, snippet, unread_count, updated_at, ad_id, notes, labels
		FROM conversations
		WHERE page_id IN (`+placeholders+`)
		ORDER BY updated_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, *c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single conversation by id, or nil if absent.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	row := db.QueryRow(`
		SELECT id, page_id, participant_id, participant_name, snippet, unread_count, updated_at, ad_id, notes, labels
		FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// SetConversationFlag persists a single user-mutable conversation field.
// Labels must be passed as []string; everything else as its natural type.
func (db *DB) SetConversationFlag(id, field string, value any) error {
	if !flagColumns[field] {
		return fmt.Errorf("field %q is not persistable", field)
	}
	if field == "labels" {
		labels, ok := value.([]string)
		if !ok {
			return fmt.Errorf("labels value must be []string, got %T", value)
		}
		encoded, err := json.Marshal(emptyIfNil(labels))
		if err != nil {
			return fmt.Errorf("marshal labels: %w", err)
		}
		value = string(encoded)
	}
	now := time.Now().UnixMilli()
	_, err := db.Exec(
		`UPDATE conversations SET `+field+` = ?, row_updated_at = ? WHERE id = ?`,
		value, now, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var labels string
	if err := row.Scan(&c.ID, &c.PageID, &c.ParticipantID, &c.ParticipantName,
		&c.Snippet, &c.UnreadCount, &c.UpdatedAt, &c.AdID, &c.Notes, &labels); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(labels), &c.Labels); err != nil {
		return nil, fmt.Errorf("decode labels for %s: %w", c.ID, err)
	}
	return &c, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
