package store

// PlaceholderBody is the body sentinel for a message that carried only
// attachments (sticker, image, file) and no text.
const PlaceholderBody = "[media]"

// AttachmentType tags a message attachment.
type AttachmentType string

const (
	AttachmentImage   AttachmentType = "image"
	AttachmentFile    AttachmentType = "file"
	AttachmentSticker AttachmentType = "sticker"
	AttachmentVideo   AttachmentType = "video"
	AttachmentAudio   AttachmentType = "audio"
	AttachmentOther   AttachmentType = "other"
)

// NormalizeAttachmentType maps unknown provider type tags to AttachmentOther.
func NormalizeAttachmentType(s string) AttachmentType {
	switch AttachmentType(s) {
	case AttachmentImage, AttachmentFile, AttachmentSticker, AttachmentVideo, AttachmentAudio:
		return AttachmentType(s)
	default:
		return AttachmentOther
	}
}

// Attachment is a single media entry on a message.
type Attachment struct {
	Type AttachmentType `json:"type"`
	URL  string         `json:"url"`
}

// Conversation is a thread between one source page and one counterpart.
type Conversation struct {
	ID              string
	PageID          string
	ParticipantID   string
	ParticipantName string
	Snippet         string
	UnreadCount     int
	UpdatedAt       int64 // unix millis, sort key
	AdID            string
	Notes           string
	Labels          []string
}

// Message is a single message within a conversation. The ID is a temporary
// client id ("tmp-...") until the provider confirms the send.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	Body           string
	Attachments    []Attachment
	CreatedAt      int64 // unix millis
}

// Patch is a shallow partial update of a Conversation. Nil fields are left
// untouched, so applying the same patch twice is a no-op.
type Patch struct {
	ParticipantName *string
	Snippet         *string
	UnreadCount     *int
	UpdatedAt       *int64
	AdID            *string
	Notes           *string
	Labels          *[]string
}

// Apply merges the patch into the conversation.
func (p Patch) Apply(c *Conversation) {
	if p.ParticipantName != nil {
		c.ParticipantName = *p.ParticipantName
	}
	if p.Snippet != nil {
		c.Snippet = *p.Snippet
	}
	if p.UnreadCount != nil {
		c.UnreadCount = *p.UnreadCount
	}
	if p.UpdatedAt != nil {
		c.UpdatedAt = *p.UpdatedAt
	}
	if p.AdID != nil {
		c.AdID = *p.AdID
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
	if p.Labels != nil {
		c.Labels = append([]string(nil), (*p.Labels)...)
	}
}

// FromConversation builds a patch carrying every summary field the global
// scan reports for an updated conversation.
func FromConversation(c Conversation) Patch {
	name := c.ParticipantName
	snippet := c.Snippet
	unread := c.UnreadCount
	updated := c.UpdatedAt
	p := Patch{
		ParticipantName: &name,
		Snippet:         &snippet,
		UnreadCount:     &unread,
		UpdatedAt:       &updated,
	}
	if c.AdID != "" {
		adID := c.AdID
		p.AdID = &adID
	}
	return p
}
