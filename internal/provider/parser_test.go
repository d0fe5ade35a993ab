package provider

import (
	"encoding/json"
	"testing"

	"github.com/pageinbox/inboxd/internal/store"
)

func TestParseConversation(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "t_100",
		"snippet": "is the blue one still available?",
		"unread_count": 3,
		"updated_time": "2026-08-01T12:30:00+0000",
		"ad_id": "ad-9",
		"participants": {"data": [
			{"id": "page-1", "name": "Shop"},
			{"id": "u-55", "name": "Alice"}
		]}
	}`)

	c, err := ParseConversation(raw, "page-1")
	if err != nil {
		t.Fatalf("ParseConversation() error = %v", err)
	}
	if c.ID != "t_100" || c.PageID != "page-1" {
		t.Errorf("ids = %q/%q, want t_100/page-1", c.ID, c.PageID)
	}
	if c.ParticipantID != "u-55" || c.ParticipantName != "Alice" {
		t.Errorf("participant = %q/%q, want u-55/Alice (page itself skipped)", c.ParticipantID, c.ParticipantName)
	}
	if c.UnreadCount != 3 || c.AdID != "ad-9" {
		t.Errorf("unread/ad = %d/%q, want 3/ad-9", c.UnreadCount, c.AdID)
	}
	if c.UpdatedAt == 0 {
		t.Error("UpdatedAt not parsed")
	}
}

func TestParseConversationMissingID(t *testing.T) {
	_, err := ParseConversation(json.RawMessage(`{"snippet":"x","updated_time":"2026-08-01T12:30:00Z"}`), "p")
	if err == nil {
		t.Error("expected error for missing id")
	}
}

func TestParseConversationMissingTimestamp(t *testing.T) {
	_, err := ParseConversation(json.RawMessage(`{"id":"t_1"}`), "p")
	if err == nil {
		t.Error("expected error for missing updated_time")
	}
}

func TestParseMessageText(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "m_1",
		"created_time": "2026-08-01T12:31:05Z",
		"message": "hello there",
		"from": {"id": "u-55", "name": "Alice"}
	}`)

	m, err := ParseMessage(raw, "t_100")
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if m.ConversationID != "t_100" || m.Body != "hello there" {
		t.Errorf("got %+v", m)
	}
	if m.SenderID != "u-55" || m.SenderName != "Alice" {
		t.Errorf("sender = %q/%q, want u-55/Alice", m.SenderID, m.SenderName)
	}
}

func TestParseMessageAttachmentOnly(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "m_2",
		"created_time": "2026-08-01T12:31:05Z",
		"from": {"id": "u-55"},
		"attachments": {"data": [
			{"type": "sticker", "url": "https://cdn/s.webp"},
			{"type": "weird_new_kind", "url": "https://cdn/x"}
		]}
	}`)

	m, err := ParseMessage(raw, "t_100")
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if m.Body != store.PlaceholderBody {
		t.Errorf("body = %q, want placeholder for attachment-only message", m.Body)
	}
	if len(m.Attachments) != 2 {
		t.Fatalf("attachments = %d, want 2", len(m.Attachments))
	}
	if m.Attachments[0].Type != store.AttachmentSticker {
		t.Errorf("type[0] = %q, want sticker", m.Attachments[0].Type)
	}
	if m.Attachments[1].Type != store.AttachmentOther {
		t.Errorf("type[1] = %q, want other (unknown tags normalized)", m.Attachments[1].Type)
	}
}

func TestParseMessageGarbage(t *testing.T) {
	if _, err := ParseMessage(json.RawMessage(`{`), "c"); err == nil {
		t.Error("expected decode error")
	}
	if _, err := ParseMessage(json.RawMessage(`{"created_time":"2026-08-01T12:31:05Z"}`), "c"); err == nil {
		t.Error("expected error for missing id")
	}
}
