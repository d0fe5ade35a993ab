package sync

import (
	"github.com/pageinbox/inboxd/internal/bus"
	"github.com/pageinbox/inboxd/internal/provider"
	"github.com/pageinbox/inboxd/internal/status"
	"github.com/pageinbox/inboxd/internal/store"
	"go.uber.org/zap"
)

// SelectPages replaces the set of source accounts being aggregated. The
// previous scan loop chain goes stale via the epoch bump; a non-empty
// selection starts a fresh chain. An empty selection stops scanning.
func (o *Orchestrator) SelectPages(accounts []provider.Account) {
	o.mu.Lock()
	o.accounts = append([]provider.Account(nil), accounts...)
	o.scanEpoch++
	epoch := o.scanEpoch
	o.cursor = o.clock.Now()
	o.mu.Unlock()

	if len(accounts) == 0 {
		o.conversations.Replace(nil)
		o.transition(status.Idle)
		return
	}
	o.transition(status.Polling)

	// Fast path: whatever storage already has, immediately.
	o.reloadConversations()

	// Remote truth arrives asynchronously; the caller is never blocked on it.
	go func() {
		ctx, cancel := o.callCtx()
		defer cancel()
		if err := o.provider.SyncConversations(ctx, accounts); err != nil {
			o.logger.Error("initial conversation sync failed", zap.Error(err))
			return
		}
		if !o.scanAlive(epoch) {
			return
		}
		o.reloadConversations()
	}()

	o.clock.AfterFunc(o.scanInterval, func() { o.scanTick(epoch) })
}

func (o *Orchestrator) scanAlive(epoch uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return epoch == o.scanEpoch
}

// scanTick runs one global scan and reschedules itself. A stale epoch exits
// without rescheduling; a failed scan still reschedules, the cursor simply
// does not advance, so the next tick re-covers the window.
func (o *Orchestrator) scanTick(epoch uint64) {
	if !o.scanAlive(epoch) {
		return
	}
	o.scanOnce(epoch)
	if !o.scanAlive(epoch) {
		return
	}
	o.clock.AfterFunc(o.scanInterval, func() { o.scanTick(epoch) })
}

func (o *Orchestrator) scanOnce(epoch uint64) {
	o.transition(status.Polling)

	o.mu.Lock()
	accounts := append([]provider.Account(nil), o.accounts...)
	since := o.cursor
	o.mu.Unlock()

	ctx, cancel := o.callCtx()
	delta, err := o.provider.ListNewSince(ctx, accounts, since)
	cancel()
	if err != nil {
		// Swallowed: the fixed tick interval is the only backoff. The next
		// tick starts by transitioning back to POLLING.
		o.logger.Error("scan failed", zap.Error(err), zap.Time("since", since))
		o.transition(status.BackingOff)
		o.bus.Emit("sync.scan_failed", err.Error())
		return
	}
	o.transition(status.Applying)

	// Advance to "now" rather than the query boundary; re-covering a sliver
	// of the window beats drifting behind a skewed provider clock.
	o.mu.Lock()
	o.cursor = o.clock.Now()
	o.mu.Unlock()

	fresh := make([]store.Message, 0, len(delta.NewMessages))
	for _, m := range delta.NewMessages {
		if o.seen.Add(m.ID) {
			fresh = append(fresh, m)
		}
	}
	if len(fresh) > 0 {
		// One representative per tick; a batch is a single chime, not a storm.
		if o.notifier != nil {
			o.notifier.Notify(fresh[0])
		}
		for _, m := range fresh {
			o.bus.Emit("message.new", bus.MessageRef{ConversationID: m.ConversationID, MessageID: m.ID})
		}
		if err := o.seen.Save(o.db, store.KeySeenMessages); err != nil {
			o.logger.Warn("seen-set snapshot failed", zap.Error(err))
		}
	}

	open, hasOpen := o.conversations.Get(o.OpenConversation())
	if hasOpen && affectsOpen(open, fresh, delta.UpdatedConversations) {
		// Storage only; the focused loop owns remote truth for the open
		// conversation.
		o.refetchOpenFromStorage(open.ID)
	}

	for _, uc := range delta.UpdatedConversations {
		if !o.conversations.ApplyPatch(uc.ID, store.FromConversation(uc)) {
			o.conversations.Upsert(uc)
		}
	}
	o.pinOpenUnread()

	o.bus.Emit("sync.scan", ScanSummary{New: len(fresh), Updated: len(delta.UpdatedConversations)})
	o.transition(status.Polling)
}

// ScanSummary is the payload of sync.scan events.
type ScanSummary struct {
	New     int
	Updated int
}

// affectsOpen reports whether any scan result belongs to the open
// conversation — by exact id, or by (page, participant) pair for records
// that predate conversation-id knowledge.
func affectsOpen(open store.Conversation, msgs []store.Message, convs []store.Conversation) bool {
	for _, m := range msgs {
		if m.ConversationID == open.ID {
			return true
		}
		if m.ConversationID == "" && m.SenderID != "" && m.SenderID == open.ParticipantID {
			return true
		}
	}
	for _, c := range convs {
		if c.ID == open.ID {
			return true
		}
		if c.PageID == open.PageID && c.ParticipantID != "" && c.ParticipantID == open.ParticipantID {
			return true
		}
	}
	return false
}

func (o *Orchestrator) refetchOpenFromStorage(conversationID string) {
	msgs, err := o.db.ListMessages(conversationID)
	if err != nil {
		o.logger.Error("open conversation refetch failed",
			zap.Error(err), zap.String("conversation_id", conversationID))
		return
	}
	if o.OpenConversation() != conversationID {
		return
	}
	grew := o.messages.Set(conversationID, msgs)
	o.bus.Emit("message.refreshed", bus.Refreshed{
		ConversationID: conversationID,
		Count:          len(msgs),
		Grew:           grew,
	})
}
