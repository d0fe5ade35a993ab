package notify

import (
	"errors"
	"strings"
	"testing"

	"github.com/pageinbox/inboxd/internal/bus"
	"github.com/pageinbox/inboxd/internal/store"
)

type fakePlayer struct {
	calls int
	err   error
}

func (p *fakePlayer) Play(pcm []byte, sampleRate int) error {
	p.calls++
	return p.err
}

type fakeDesktop struct {
	perm     Permission
	requests int
	notified []string
	err      error
}

func (d *fakeDesktop) Permission() Permission { return d.perm }
func (d *fakeDesktop) RequestPermission()     { d.requests++ }
func (d *fakeDesktop) Notify(title, body string) error {
	d.notified = append(d.notified, title+": "+body)
	return d.err
}

func collectToasts(t *testing.T, b *bus.Bus) <-chan bus.Event {
	t.Helper()
	ch, cancel := b.Subscribe("notify.", 8)
	t.Cleanup(cancel)
	return ch
}

func TestNotifyFiresAllChannels(t *testing.T) {
	b := bus.New()
	ch := collectToasts(t, b)
	player := &fakePlayer{}
	desktop := &fakeDesktop{perm: PermissionGranted}
	d := New(Options{
		Desktop: desktop, Player: player, Bus: b,
		SoundEnabled: true, DesktopOn: true,
	})

	d.Notify(store.Message{SenderName: "Ana", Body: "hello"})

	if player.calls != 1 {
		t.Fatalf("expected 1 chime, got %d", player.calls)
	}
	if len(desktop.notified) != 1 {
		t.Fatalf("expected 1 desktop notification, got %d", len(desktop.notified))
	}
	select {
	case ev := <-ch:
		if ev.Kind != "notify.toast" {
			t.Fatalf("unexpected event kind %q", ev.Kind)
		}
		toast := ev.Payload.(bus.Toast)
		if toast.Title != "Ana" || toast.Body != "hello" {
			t.Fatalf("unexpected toast %+v", toast)
		}
	default:
		t.Fatal("expected a toast event")
	}
}

func TestNotifyDefaultPermissionRequestsOnly(t *testing.T) {
	b := bus.New()
	desktop := &fakeDesktop{perm: PermissionDefault}
	d := New(Options{Desktop: desktop, Bus: b, DesktopOn: true})

	d.Notify(store.Message{Body: "hi"})

	if desktop.requests != 1 {
		t.Fatalf("expected permission request, got %d", desktop.requests)
	}
	if len(desktop.notified) != 0 {
		t.Fatalf("should not notify before permission is granted")
	}
}

func TestNotifyDeniedPermissionSkipsDesktop(t *testing.T) {
	b := bus.New()
	desktop := &fakeDesktop{perm: PermissionDenied}
	d := New(Options{Desktop: desktop, Bus: b, DesktopOn: true})

	d.Notify(store.Message{Body: "hi"})

	if desktop.requests != 0 || len(desktop.notified) != 0 {
		t.Fatal("denied permission should neither ask nor notify")
	}
}

func TestNotifyChannelFailureDoesNotBlockOthers(t *testing.T) {
	b := bus.New()
	ch := collectToasts(t, b)
	player := &fakePlayer{err: errors.New("no audio device")}
	desktop := &fakeDesktop{perm: PermissionGranted, err: errors.New("dbus down")}
	d := New(Options{
		Desktop: desktop, Player: player, Bus: b,
		SoundEnabled: true, DesktopOn: true,
	})

	d.Notify(store.Message{SenderName: "Ana", Body: "hello"})

	if player.calls != 1 || len(desktop.notified) != 1 {
		t.Fatal("failing channels must still be attempted")
	}
	select {
	case <-ch:
	default:
		t.Fatal("toast must fire even when other channels fail")
	}
}

func TestNotifyRespectsDisabledChannels(t *testing.T) {
	b := bus.New()
	player := &fakePlayer{}
	desktop := &fakeDesktop{perm: PermissionGranted}
	d := New(Options{Desktop: desktop, Player: player, Bus: b})

	d.Notify(store.Message{Body: "hi"})

	if player.calls != 0 || len(desktop.notified) != 0 {
		t.Fatal("disabled channels must not fire")
	}
}

func TestPreviewTruncatesOnRunes(t *testing.T) {
	body := strings.Repeat("é", 100)
	got := Preview(body, 10)
	runes := []rune(got)
	if len(runes) != 10 {
		t.Fatalf("expected 10 runes, got %d", len(runes))
	}
	if runes[len(runes)-1] != '…' {
		t.Fatalf("expected ellipsis terminator, got %q", string(runes[len(runes)-1]))
	}
	if Preview("short", 10) != "short" {
		t.Fatal("short bodies pass through unchanged")
	}
}

func TestNotifyFallbackTitle(t *testing.T) {
	b := bus.New()
	ch := collectToasts(t, b)
	d := New(Options{Bus: b})

	d.Notify(store.Message{Body: "anonymous"})

	ev := <-ch
	if ev.Payload.(bus.Toast).Title != "New message" {
		t.Fatalf("expected fallback title, got %+v", ev.Payload)
	}
}
