package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced:
//
//	sync.*         polling loop outcomes and session state changes
//	conversation.* conversation store updates
//	message.*      message cache updates and send lifecycle
//	notify.*       notification channel requests for the host shell
type Event struct {
	ID        string
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageRef identifies a single message within a conversation.
type MessageRef struct {
	ConversationID string
	MessageID      string
}

// SendResult is the payload for message.send_ack and message.send_failed.
type SendResult struct {
	ConversationID string
	TempID         string
	RemoteID       string
	Err            string
}

// Toast is the payload for notify.toast events.
type Toast struct {
	Title    string
	Body     string
	Duration time.Duration
}

// Refreshed is the payload for message.refreshed events. Grew feeds
// msgcache.ShouldAutoscroll: consumers pass it together with their current
// viewport gap to decide whether to follow the tail.
type Refreshed struct {
	ConversationID string
	Count          int
	Grew           bool
}

// Avatar is the payload for conversation.avatar events: the resolved
// profile picture (or generated fallback) for the open conversation's
// counterpart.
type Avatar struct {
	ConversationID string
	ParticipantID  string
	Data           []byte
}
