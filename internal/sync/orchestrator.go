// Package sync owns the two polling loops that keep the local conversation
// view aligned with the remote provider: a global new-message scan across all
// selected pages, and a focused refresh of the open conversation.
package sync

import (
	"context"
	"sync"
	"time"

	"github.com/pageinbox/inboxd/internal/bus"
	"github.com/pageinbox/inboxd/internal/convstore"
	"github.com/pageinbox/inboxd/internal/msgcache"
	"github.com/pageinbox/inboxd/internal/provider"
	"github.com/pageinbox/inboxd/internal/seenset"
	"github.com/pageinbox/inboxd/internal/status"
	"github.com/pageinbox/inboxd/internal/store"
	"go.uber.org/zap"
)

// Notifier receives one representative message per scan tick that produced
// unseen messages.
type Notifier interface {
	Notify(msg store.Message)
}

// AvatarSource resolves a participant's avatar bytes. Implementations are
// best-effort and always return something renderable, never an error.
type AvatarSource interface {
	Avatar(ctx context.Context, participantID string) []byte
}

// Options configures an Orchestrator. Zero tunables fall back to defaults.
type Options struct {
	DB       *store.DB
	Provider provider.Provider
	Bus      *bus.Bus
	Seen     *seenset.Set
	Machine  *status.Machine
	Notifier Notifier
	Avatars  AvatarSource
	Logger   *zap.Logger
	Clock    Clock

	ScanInterval   time.Duration
	FocusInterval  time.Duration
	ReconcileEvery int
	CallTimeout    time.Duration
}

// Orchestrator owns the conversation store and message cache; every mutation
// of either flows through it.
type Orchestrator struct {
	db       *store.DB
	provider provider.Provider
	bus      *bus.Bus
	seen     *seenset.Set
	machine  *status.Machine
	notifier Notifier
	avatars  AvatarSource
	logger   *zap.Logger
	clock    Clock

	scanInterval   time.Duration
	focusInterval  time.Duration
	reconcileEvery int
	callTimeout    time.Duration

	conversations *convstore.Store
	messages      *msgcache.Cache

	mu         sync.Mutex
	accounts   []provider.Account
	openConv   string
	scanEpoch  uint64
	focusEpoch uint64
	cursor     time.Time
}

// New creates an orchestrator. Loops start on SelectPages / Open.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = NewClock()
	}
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = 4 * time.Second
	}
	if opts.FocusInterval <= 0 {
		opts.FocusInterval = 3 * time.Second
	}
	if opts.ReconcileEvery <= 0 {
		opts.ReconcileEvery = 10
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.Seen == nil {
		opts.Seen = seenset.New(0)
	}
	if opts.Machine == nil {
		opts.Machine = status.NewMachine(opts.Bus)
	}
	return &Orchestrator{
		db:             opts.DB,
		provider:       opts.Provider,
		bus:            opts.Bus,
		seen:           opts.Seen,
		machine:        opts.Machine,
		notifier:       opts.Notifier,
		avatars:        opts.Avatars,
		logger:         opts.Logger,
		clock:          opts.Clock,
		scanInterval:   opts.ScanInterval,
		focusInterval:  opts.FocusInterval,
		reconcileEvery: opts.ReconcileEvery,
		callTimeout:    opts.CallTimeout,
		conversations:  convstore.New(),
		messages:       msgcache.New(),
	}
}

// Conversations exposes the conversation store for read-side projections.
func (o *Orchestrator) Conversations() *convstore.Store { return o.conversations }

// Messages exposes the message cache for read-side snapshots.
func (o *Orchestrator) Messages() *msgcache.Cache { return o.messages }

// OpenConversation returns the id of the conversation currently open,
// or "" when none is.
func (o *Orchestrator) OpenConversation() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.openConv
}

// Stop invalidates both loops and snapshots the seen-set. In-flight calls
// resolve against a stale epoch and discard their results.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.scanEpoch++
	o.focusEpoch++
	o.openConv = ""
	o.accounts = nil
	o.mu.Unlock()

	o.transition(status.Idle)
	if err := o.seen.Save(o.db, store.KeySeenMessages); err != nil {
		o.logger.Warn("seen-set snapshot failed", zap.Error(err))
	}
}

// Refresh is the user-triggered variant of the remote conversation
// reconciliation. Unlike the silent background path, a failure surfaces as a
// toast before being returned.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	accounts := o.accountsSnapshot()
	if len(accounts) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()

	if err := o.provider.SyncConversations(ctx, accounts); err != nil {
		o.logger.Error("manual refresh failed", zap.Error(err))
		o.bus.Emit("notify.toast", bus.Toast{
			Title:    "Refresh failed",
			Body:     err.Error(),
			Duration: 5 * time.Second,
		})
		return err
	}
	o.reloadConversations()
	return nil
}

// SetNotes persists the notes field and patches the in-memory copy, so cache
// and storage diverge for at most one round trip.
func (o *Orchestrator) SetNotes(conversationID, notes string) error {
	if err := o.db.SetConversationFlag(conversationID, "notes", notes); err != nil {
		return err
	}
	o.conversations.ApplyPatch(conversationID, store.Patch{Notes: &notes})
	o.bus.Emit("conversation.patched", conversationID)
	return nil
}

// SetLabels persists the label set and patches the in-memory copy.
func (o *Orchestrator) SetLabels(conversationID string, labels []string) error {
	if err := o.db.SetConversationFlag(conversationID, "labels", labels); err != nil {
		return err
	}
	o.conversations.ApplyPatch(conversationID, store.Patch{Labels: &labels})
	o.bus.Emit("conversation.patched", conversationID)
	return nil
}

// MarkRead zeroes the unread count.
func (o *Orchestrator) MarkRead(conversationID string) error {
	return o.setUnread(conversationID, 0)
}

// MarkUnread flags a conversation for follow-up with a single unread.
func (o *Orchestrator) MarkUnread(conversationID string) error {
	return o.setUnread(conversationID, 1)
}

func (o *Orchestrator) setUnread(conversationID string, n int) error {
	if err := o.db.SetConversationFlag(conversationID, "unread_count", n); err != nil {
		return err
	}
	o.conversations.ApplyPatch(conversationID, store.Patch{UnreadCount: &n})
	o.bus.Emit("conversation.patched", conversationID)
	return nil
}

func (o *Orchestrator) accountsSnapshot() []provider.Account {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]provider.Account(nil), o.accounts...)
}

func (o *Orchestrator) accountFor(pageID string) (provider.Account, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, a := range o.accounts {
		if a.PageID == pageID {
			return a, true
		}
	}
	return provider.Account{}, false
}

// reloadConversations rewrites the in-memory store from persistent storage,
// preserving the unread pin on the open conversation.
func (o *Orchestrator) reloadConversations() {
	pageIDs := o.pageIDs()
	convs, err := o.db.ListConversations(pageIDs)
	if err != nil {
		o.logger.Error("conversation reload failed", zap.Error(err))
		return
	}
	o.conversations.Replace(convs)
	o.pinOpenUnread()
	o.bus.Emit("conversation.refreshed", len(convs))
}

func (o *Orchestrator) pageIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, len(o.accounts))
	for i, a := range o.accounts {
		ids[i] = a.PageID
	}
	return ids
}

// pinOpenUnread forces unreadCount to 0 on the open conversation regardless
// of what storage or the provider reported; the user is looking at it.
func (o *Orchestrator) pinOpenUnread() {
	open := o.OpenConversation()
	if open == "" {
		return
	}
	zero := 0
	o.conversations.ApplyPatch(open, store.Patch{UnreadCount: &zero})
}

// transition moves the scan state machine, logging instead of failing when
// the move is redundant.
func (o *Orchestrator) transition(to status.State) {
	if o.machine.Current() == to {
		return
	}
	if err := o.machine.Transition(to); err != nil {
		o.logger.Debug("state transition skipped", zap.Error(err))
	}
}

func (o *Orchestrator) callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), o.callTimeout)
}
