package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pageinbox/inboxd/internal/store"
)

// Wire shapes for the provider's JSON payloads. Only the fields the engine
// consumes are decoded; everything else is dropped at this boundary.

type wireConversation struct {
	ID           string           `json:"id"`
	Snippet      string           `json:"snippet"`
	UnreadCount  int              `json:"unread_count"`
	UpdatedTime  string           `json:"updated_time"`
	AdID         string           `json:"ad_id"`
	Participants wireParticipants `json:"participants"`
}

type wireParticipants struct {
	Data []wireParticipant `json:"data"`
}

type wireParticipant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wireMessage struct {
	ID          string          `json:"id"`
	CreatedTime string          `json:"created_time"`
	Message     string          `json:"message"`
	From        wireParticipant `json:"from"`
	Attachments wireAttachments `json:"attachments"`
}

type wireAttachments struct {
	Data []wireAttachment `json:"data"`
}

type wireAttachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ParseConversation validates a raw conversation payload for the given page.
// The primary counterpart is the first participant that is not the page
// itself.
func ParseConversation(raw json.RawMessage, pageID string) (*store.Conversation, error) {
	var w wireConversation
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	if w.ID == "" {
		return nil, fmt.Errorf("conversation payload missing id")
	}

	c := &store.Conversation{
		ID:          w.ID,
		PageID:      pageID,
		Snippet:     w.Snippet,
		UnreadCount: max(w.UnreadCount, 0),
		AdID:        w.AdID,
	}
	for _, p := range w.Participants.Data {
		if p.ID != pageID {
			c.ParticipantID = p.ID
			c.ParticipantName = p.Name
			break
		}
	}

	ts, err := parseWireTime(w.UpdatedTime)
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", w.ID, err)
	}
	c.UpdatedAt = ts
	return c, nil
}

// ParseMessage validates a raw message payload. A message with attachments
// and no text gets the placeholder body.
func ParseMessage(raw json.RawMessage, conversationID string) (*store.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if w.ID == "" {
		return nil, fmt.Errorf("message payload missing id")
	}

	m := &store.Message{
		ID:             w.ID,
		ConversationID: conversationID,
		SenderID:       w.From.ID,
		SenderName:     w.From.Name,
		Body:           w.Message,
	}
	for _, a := range w.Attachments.Data {
		m.Attachments = append(m.Attachments, store.Attachment{
			Type: store.NormalizeAttachmentType(a.Type),
			URL:  a.URL,
		})
	}
	if m.Body == "" && len(m.Attachments) > 0 {
		m.Body = store.PlaceholderBody
	}

	ts, err := parseWireTime(w.CreatedTime)
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", w.ID, err)
	}
	m.CreatedAt = ts
	return m, nil
}

// parseWireTime accepts the provider's RFC3339 timestamps, with or without
// numeric zone offsets. An empty value is an error: both sort keys depend on it.
func parseWireTime(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing timestamp")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05-0700"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unparseable timestamp %q", s)
}
