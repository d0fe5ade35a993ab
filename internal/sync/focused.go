package sync

import (
	"github.com/pageinbox/inboxd/internal/bus"
	"github.com/pageinbox/inboxd/internal/provider"
	"github.com/pageinbox/inboxd/internal/store"
	"go.uber.org/zap"
)

// Open marks a conversation as the one being viewed and starts its focused
// refresh loop. Any previous focused loop goes stale via the epoch bump.
// The unread count is pinned to zero immediately, in memory and in storage.
func (o *Orchestrator) Open(conversationID string) {
	o.mu.Lock()
	o.openConv = conversationID
	o.focusEpoch++
	epoch := o.focusEpoch
	o.mu.Unlock()

	if conversationID == "" {
		return
	}

	if err := o.db.KVSet(store.KeyLastConversation, conversationID); err != nil {
		o.logger.Warn("last-conversation hint not saved", zap.Error(err))
	}
	if err := o.MarkRead(conversationID); err != nil {
		o.logger.Warn("unread reset not persisted",
			zap.Error(err), zap.String("conversation_id", conversationID))
	}

	// Fast path from storage before the first tick.
	o.refreshFocused(conversationID, epoch, false)

	// Remote truth arrives asynchronously, same shape as the conversation
	// path in SelectPages: pull the thread into storage, then refresh from
	// storage under the same epoch so a conversation switch discards it.
	go o.syncOpenMessages(conversationID, epoch)
	if o.avatars != nil {
		go o.publishAvatar(conversationID, epoch)
	}

	o.clock.AfterFunc(o.focusInterval, func() { o.focusTick(conversationID, epoch, 1) })
}

// syncOpenMessages pulls the freshly opened conversation's messages into
// storage so the cheap storage-only reads have something to serve before the
// first expensive tick.
func (o *Orchestrator) syncOpenMessages(conversationID string, epoch uint64) {
	conv, acct, ok := o.conversationAccount(conversationID)
	if !ok {
		return
	}
	ctx, cancel := o.callCtx()
	defer cancel()
	if err := o.provider.SyncMessages(ctx, conversationID, conv.PageID, acct.AccessToken); err != nil {
		o.logger.Error("open conversation sync failed",
			zap.Error(err), zap.String("conversation_id", conversationID))
		return
	}
	if !o.focusAlive(epoch) {
		return
	}
	o.refreshFocused(conversationID, epoch, false)
}

// publishAvatar resolves the counterpart's avatar and announces it on the
// bus. The source is best-effort; an empty result is silently dropped.
func (o *Orchestrator) publishAvatar(conversationID string, epoch uint64) {
	conv, ok := o.lookupConversation(conversationID)
	if !ok || conv.ParticipantID == "" {
		return
	}
	ctx, cancel := o.callCtx()
	defer cancel()
	data := o.avatars.Avatar(ctx, conv.ParticipantID)
	if len(data) == 0 || !o.focusAlive(epoch) {
		return
	}
	o.bus.Emit("conversation.avatar", bus.Avatar{
		ConversationID: conversationID,
		ParticipantID:  conv.ParticipantID,
		Data:           data,
	})
}

// lookupConversation reads the conversation summary, falling back to storage
// when the in-memory store has not loaded it yet.
func (o *Orchestrator) lookupConversation(conversationID string) (store.Conversation, bool) {
	if conv, ok := o.conversations.Get(conversationID); ok {
		return conv, true
	}
	c, err := o.db.GetConversation(conversationID)
	if err != nil || c == nil {
		return store.Conversation{}, false
	}
	return *c, true
}

func (o *Orchestrator) conversationAccount(conversationID string) (store.Conversation, provider.Account, bool) {
	conv, ok := o.lookupConversation(conversationID)
	if !ok {
		return store.Conversation{}, provider.Account{}, false
	}
	acct, ok := o.accountFor(conv.PageID)
	if !ok {
		return store.Conversation{}, provider.Account{}, false
	}
	return conv, acct, true
}

// Close stops the focused loop. The next wake of any in-flight tick sees the
// stale epoch and exits without touching the cache.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.openConv = ""
	o.focusEpoch++
	o.mu.Unlock()
}

// LastOpened returns the persisted last-viewed-conversation hint.
func (o *Orchestrator) LastOpened() string {
	v, err := o.db.KVGet(store.KeyLastConversation)
	if err != nil {
		o.logger.Warn("last-conversation hint not read", zap.Error(err))
		return ""
	}
	return v
}

func (o *Orchestrator) focusAlive(epoch uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return epoch == o.focusEpoch
}

// focusTick refreshes the open conversation and reschedules itself. Every
// reconcileEvery-th tick takes the expensive path straight to the provider;
// the rest read storage only.
func (o *Orchestrator) focusTick(conversationID string, epoch uint64, n int) {
	if !o.focusAlive(epoch) {
		// The user switched conversations faster than the timer.
		return
	}
	expensive := n%o.reconcileEvery == 0
	o.refreshFocused(conversationID, epoch, expensive)
	if !o.focusAlive(epoch) {
		return
	}
	o.clock.AfterFunc(o.focusInterval, func() { o.focusTick(conversationID, epoch, n+1) })
}

func (o *Orchestrator) refreshFocused(conversationID string, epoch uint64, expensive bool) {
	var msgs []store.Message
	var err error

	if expensive {
		msgs, err = o.liveFetch(conversationID)
	} else {
		msgs, err = o.db.ListMessages(conversationID)
	}

	// An in-flight call may have outlived a conversation switch; re-check
	// before applying the result so a stale response never lands.
	if !o.focusAlive(epoch) {
		return
	}
	if err != nil {
		o.logger.Error("focused refresh failed",
			zap.Error(err), zap.String("conversation_id", conversationID), zap.Bool("expensive", expensive))
		return
	}

	grew := o.messages.Set(conversationID, msgs)
	o.bus.Emit("message.refreshed", bus.Refreshed{
		ConversationID: conversationID,
		Count:          len(msgs),
		Grew:           grew,
	})

	if expensive {
		o.backfillAdID(conversationID, epoch)
	}
}

// liveFetch pulls the conversation straight from the provider and writes the
// result through to storage, so the cheap ticks that follow see it too.
func (o *Orchestrator) liveFetch(conversationID string) ([]store.Message, error) {
	conv, acct, ok := o.conversationAccount(conversationID)
	if !ok {
		return o.db.ListMessages(conversationID)
	}

	ctx, cancel := o.callCtx()
	defer cancel()
	msgs, err := o.provider.LiveFetch(ctx, conversationID, conv.PageID, acct.AccessToken)
	if err != nil {
		return nil, err
	}
	if err := o.db.UpsertMessages(conversationID, msgs); err != nil {
		o.logger.Warn("live fetch write-through failed",
			zap.Error(err), zap.String("conversation_id", conversationID))
	}
	return msgs, nil
}

// backfillAdID rides the expensive tick to recover a conversation's ad link
// when the scan that created the record did not know it yet. Re-pulling the
// page's conversation summaries upserts the current ad id into storage; the
// refreshed row is then patched into the in-memory store.
func (o *Orchestrator) backfillAdID(conversationID string, epoch uint64) {
	conv, acct, ok := o.conversationAccount(conversationID)
	if !ok || conv.AdID != "" {
		return
	}
	ctx, cancel := o.callCtx()
	defer cancel()
	if err := o.provider.SyncConversations(ctx, []provider.Account{acct}); err != nil {
		o.logger.Warn("ad id backfill sync failed",
			zap.Error(err), zap.String("conversation_id", conversationID))
		return
	}
	c, err := o.db.GetConversation(conversationID)
	if err != nil || c == nil || !o.focusAlive(epoch) {
		return
	}
	if o.conversations.ApplyPatch(conversationID, store.FromConversation(*c)) {
		o.pinOpenUnread()
		o.bus.Emit("conversation.patched", conversationID)
	}
}
