package reply

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pageinbox/inboxd/internal/bus"
	"github.com/pageinbox/inboxd/internal/msgcache"
	"github.com/pageinbox/inboxd/internal/provider"
	"github.com/pageinbox/inboxd/internal/store"
)

// mockSender records calls and returns configurable results.
type mockSender struct {
	calls []provider.SendRequest
	res   *provider.SendResult
	err   error
}

func (m *mockSender) Send(_ context.Context, req provider.SendRequest) (*provider.SendResult, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.res, nil
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSendEmptyBodyIsNoop(t *testing.T) {
	mock := &mockSender{}
	cache := msgcache.New()
	s := New(mock, testDB(t), cache, bus.New(), nil)

	if err := s.Send(context.Background(), "c1", "p1", "u1", "tok", "   "); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(mock.calls) != 0 {
		t.Errorf("provider called %d times for empty body, want 0", len(mock.calls))
	}
	if _, ok := cache.Get("c1"); ok {
		t.Error("cache touched for empty body")
	}
}

func TestSendSuccessResolvesTempID(t *testing.T) {
	mock := &mockSender{res: &provider.SendResult{Success: true, RemoteMessageID: "R123"}}
	cache := msgcache.New()
	b := bus.New()
	ch, unsub := b.Subscribe("message.send_ack", 10)
	defer unsub()

	s := New(mock, testDB(t), cache, b, nil)
	if err := s.Send(context.Background(), "c1", "p1", "u1", "tok", "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msgs, _ := cache.Get("c1")
	if len(msgs) != 1 {
		t.Fatalf("cache = %d messages, want 1", len(msgs))
	}
	if msgs[0].ID != "R123" {
		t.Errorf("id = %q, want R123 (temp id resolved in place)", msgs[0].ID)
	}
	if msgs[0].Body != "hello" {
		t.Errorf("body = %q, want hello", msgs[0].Body)
	}

	select {
	case evt := <-ch:
		ack := evt.Payload.(bus.SendResult)
		if ack.RemoteID != "R123" || !strings.HasPrefix(ack.TempID, "tmp-") {
			t.Errorf("ack = %+v", ack)
		}
	default:
		t.Fatal("no send_ack event")
	}
}

func TestSendSuccessPersistsAndKeepsHistory(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertMessages("c1", []store.Message{{ID: "m1", Body: "earlier", CreatedAt: 1000}}); err != nil {
		t.Fatal(err)
	}

	mock := &mockSender{res: &provider.SendResult{Success: true, RemoteMessageID: "R123"}}
	cache := msgcache.New()
	cache.Set("c1", []store.Message{{ID: "m1", Body: "earlier", CreatedAt: 1000}})

	s := New(mock, db, cache, bus.New(), nil)
	if err := s.Send(context.Background(), "c1", "p1", "u1", "tok", "hello"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// The delivered message is persisted, so the storage reconcile keeps it
	// alongside the prior history instead of erasing it.
	stored, err := db.ListMessages("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 || stored[1].ID != "R123" || stored[1].Body != "hello" {
		t.Fatalf("storage = %+v, want history plus R123", stored)
	}

	msgs, _ := cache.Get("c1")
	if len(msgs) != 2 {
		t.Fatalf("cache = %d messages, want 2", len(msgs))
	}
	if msgs[1].ID != "R123" {
		t.Errorf("last cache entry = %q, want R123", msgs[1].ID)
	}
	for _, m := range msgs {
		if strings.HasPrefix(m.ID, "tmp-") {
			t.Errorf("optimistic entry %q survived the send", m.ID)
		}
	}
}

func TestSendRejectionRollsBack(t *testing.T) {
	mock := &mockSender{res: &provider.SendResult{Success: false}}
	cache := msgcache.New()
	b := bus.New()
	ch, unsub := b.Subscribe("message.send_failed", 10)
	defer unsub()

	s := New(mock, testDB(t), cache, b, nil)
	if err := s.Send(context.Background(), "c1", "p1", "u1", "tok", "hello"); err == nil {
		t.Fatal("Send() should report rejection")
	}

	msgs, _ := cache.Get("c1")
	if len(msgs) != 0 {
		t.Errorf("cache = %d messages after rollback, want 0", len(msgs))
	}
	select {
	case <-ch:
	default:
		t.Fatal("no send_failed event")
	}
}

func TestSendSuccessWithoutIDRollsBack(t *testing.T) {
	mock := &mockSender{res: &provider.SendResult{Success: true}}
	cache := msgcache.New()
	s := New(mock, testDB(t), cache, bus.New(), nil)

	if err := s.Send(context.Background(), "c1", "p1", "u1", "tok", "hello"); err == nil {
		t.Fatal("Send() should treat a success without id as a failure")
	}
	msgs, _ := cache.Get("c1")
	if len(msgs) != 0 {
		t.Errorf("cache = %d messages, want 0", len(msgs))
	}
}

func TestSendTransportErrorReconcilesFromStorage(t *testing.T) {
	db := testDB(t)
	// The message actually landed server-side; the sync loop already wrote it.
	if err := db.UpsertMessages("c1", []store.Message{
		{ID: "m1", CreatedAt: 1000},
		{ID: "R900", Body: "hello", CreatedAt: 2000},
	}); err != nil {
		t.Fatal(err)
	}

	mock := &mockSender{err: errors.New("connection reset")}
	cache := msgcache.New()
	cache.Set("c1", []store.Message{{ID: "m1", CreatedAt: 1000}})

	s := New(mock, db, cache, bus.New(), nil)
	if err := s.Send(context.Background(), "c1", "p1", "u1", "tok", "hello"); err == nil {
		t.Fatal("Send() should surface the transport error")
	}

	// Storage wins: the optimistic entry is gone, the delivered copy is there.
	msgs, _ := cache.Get("c1")
	if len(msgs) != 2 {
		t.Fatalf("cache = %d messages, want 2 (reconciled from storage)", len(msgs))
	}
	for _, m := range msgs {
		if strings.HasPrefix(m.ID, "tmp-") {
			t.Errorf("optimistic entry %q survived storage reconciliation", m.ID)
		}
	}
}

func TestSendTransportErrorKeepsOptimisticWhenStorageEmpty(t *testing.T) {
	mock := &mockSender{err: errors.New("timeout")}
	cache := msgcache.New()
	s := New(mock, testDB(t), cache, bus.New(), nil)

	if err := s.Send(context.Background(), "c1", "p1", "u1", "tok", "hello"); err == nil {
		t.Fatal("Send() should surface the transport error")
	}
	// Nothing authoritative exists; the provisional entry stays visible
	// until a poll settles the question.
	msgs, _ := cache.Get("c1")
	if len(msgs) != 1 {
		t.Errorf("cache = %d messages, want 1", len(msgs))
	}
}
