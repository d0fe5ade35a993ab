// Package reply implements the optimistic-send protocol: a provisional
// message appears immediately and is reconciled with the provider's answer
// or rolled back.
package reply

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pageinbox/inboxd/internal/bus"
	"github.com/pageinbox/inboxd/internal/msgcache"
	"github.com/pageinbox/inboxd/internal/provider"
	"github.com/pageinbox/inboxd/internal/store"
	"go.uber.org/zap"
)

// Sender is the slice of the provider the submitter needs.
type Sender interface {
	Send(ctx context.Context, req provider.SendRequest) (*provider.SendResult, error)
}

// Submitter sends replies for the page.
type Submitter struct {
	sender Sender
	db     *store.DB
	cache  *msgcache.Cache
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates a submitter.
func New(sender Sender, db *store.DB, cache *msgcache.Cache, b *bus.Bus, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{sender: sender, db: db, cache: cache, bus: b, logger: logger}
}

// Send delivers body to the conversation's counterpart. An empty body is a
// no-op. Failure never poisons the session; at worst the provisional message
// disappears again.
func (s *Submitter) Send(ctx context.Context, conversationID, pageID, recipientID, accessToken, body string) error {
	if strings.TrimSpace(body) == "" {
		return nil
	}

	tempID := "tmp-" + uuid.NewString()
	provisional := store.Message{
		ID:             tempID,
		ConversationID: conversationID,
		SenderID:       pageID,
		Body:           body,
		CreatedAt:      time.Now().UnixMilli(),
	}
	s.cache.AppendOptimistic(conversationID, provisional)
	s.bus.Emit("message.optimistic", bus.MessageRef{ConversationID: conversationID, MessageID: tempID})

	res, err := s.sender.Send(ctx, provider.SendRequest{
		ConversationID: conversationID,
		PageID:         pageID,
		RecipientID:    recipientID,
		Body:           body,
		AccessToken:    accessToken,
	})
	if err != nil {
		// The message may have been delivered despite the client-side error;
		// storage is the arbiter, not the failed call.
		s.logger.Error("send transport error", zap.Error(err), zap.String("conversation_id", conversationID))
		s.reconcileFromStorage(conversationID)
		s.bus.Emit("message.send_failed", bus.SendResult{
			ConversationID: conversationID, TempID: tempID, Err: err.Error(),
		})
		return fmt.Errorf("send: %w", err)
	}

	if !res.Success || res.RemoteMessageID == "" {
		s.cache.Rollback(conversationID, tempID)
		s.logger.Warn("send rejected", zap.String("conversation_id", conversationID))
		s.bus.Emit("message.send_failed", bus.SendResult{
			ConversationID: conversationID, TempID: tempID, Err: "rejected by provider",
		})
		return fmt.Errorf("send rejected by provider")
	}

	s.cache.Resolve(conversationID, tempID, res.RemoteMessageID)

	// Persist the delivered message under its authoritative id so the
	// storage reconcile below (and every later storage-only read) keeps it.
	sent := provisional
	sent.ID = res.RemoteMessageID
	if err := s.db.UpsertMessage(&sent); err != nil {
		s.logger.Warn("sent message not persisted",
			zap.Error(err), zap.String("conversation_id", conversationID))
	}

	// Pick up server-side enrichment (attachments, formatting). This may
	// transiently replace the just-resolved entry again, which is fine.
	s.reconcileFromStorage(conversationID)
	s.bus.Emit("message.send_ack", bus.SendResult{
		ConversationID: conversationID, TempID: tempID, RemoteID: res.RemoteMessageID,
	})
	return nil
}

func (s *Submitter) reconcileFromStorage(conversationID string) {
	msgs, err := s.db.ListMessages(conversationID)
	if err != nil {
		s.logger.Warn("post-send reconcile failed", zap.Error(err), zap.String("conversation_id", conversationID))
		return
	}
	if len(msgs) == 0 {
		// Nothing authoritative yet; keep whatever the cache holds.
		return
	}
	s.cache.Set(conversationID, msgs)
}
