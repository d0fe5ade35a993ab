// Package provider is the boundary to the remote message provider. Raw
// provider payloads are parsed into typed store records here; loosely-typed
// JSON never crosses this package's surface.
package provider

import (
	"context"
	"time"

	"github.com/pageinbox/inboxd/internal/store"
)

// Account carries the credentials for one source page.
type Account struct {
	PageID      string
	AccessToken string
}

// Delta is the result of a global new-message scan.
type Delta struct {
	NewMessages          []store.Message
	UpdatedConversations []store.Conversation
}

// SendRequest describes one outgoing message.
type SendRequest struct {
	ConversationID string
	PageID         string
	RecipientID    string
	Body           string
	AccessToken    string
}

// SendResult is the provider's answer to a send.
type SendResult struct {
	Success         bool
	RemoteMessageID string
}

// Provider is the remote message source. All calls may fail transiently; the
// rate limit shows up as errors, never as blocking.
type Provider interface {
	// SyncConversations pulls conversation summaries for all accounts and
	// upserts them into persistent storage.
	SyncConversations(ctx context.Context, accounts []Account) error
	// SyncMessages pulls a conversation's messages and upserts them into
	// persistent storage.
	SyncMessages(ctx context.Context, conversationID, pageID, accessToken string) error
	// ListNewSince returns messages and conversation updates newer than since
	// across the given accounts.
	ListNewSince(ctx context.Context, accounts []Account, since time.Time) (*Delta, error)
	// Send delivers one message. A nil error with Success=false or an empty
	// RemoteMessageID means the provider rejected the send.
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
	// LiveFetch reads a conversation's messages directly from the provider,
	// bypassing persistent storage.
	LiveFetch(ctx context.Context, conversationID, pageID, accessToken string) ([]store.Message, error)
}

// AvatarFetcher is the optional participant-picture capability.
type AvatarFetcher interface {
	FetchAvatar(ctx context.Context, participantID string) ([]byte, error)
}
