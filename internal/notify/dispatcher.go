// Package notify fans one representative message per poll tick out to three
// independent best-effort channels: a chime, a desktop notification and an
// in-app toast.
package notify

import (
	"time"

	"github.com/pageinbox/inboxd/internal/bus"
	"github.com/pageinbox/inboxd/internal/store"
	"go.uber.org/zap"
)

// ToastDuration is how long the in-app toast stays visible.
const ToastDuration = 5 * time.Second

// Permission is the desktop-notification permission state.
type Permission int

const (
	// PermissionDefault means the user was never asked.
	PermissionDefault Permission = iota
	PermissionGranted
	PermissionDenied
)

// Desktop is the host's desktop-notification capability. A nil Desktop means
// the capability is unavailable, which is not an error.
type Desktop interface {
	Permission() Permission
	RequestPermission()
	Notify(title, body string) error
}

// Player is the host's audio playback capability.
type Player interface {
	Play(pcm []byte, sampleRate int) error
}

// Options configures a Dispatcher.
type Options struct {
	Desktop       Desktop
	Player        Player
	Bus           *bus.Bus
	Logger        *zap.Logger
	SoundEnabled  bool
	DesktopOn     bool
	PreviewLength int
}

// Dispatcher decides which channels fire for an incoming message.
type Dispatcher struct {
	desktop    Desktop
	player     Player
	bus        *bus.Bus
	logger     *zap.Logger
	sound      bool
	desktopOn  bool
	previewLen int
}

// New creates a dispatcher.
func New(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = 80
	}
	return &Dispatcher{
		desktop:    opts.Desktop,
		player:     opts.Player,
		bus:        opts.Bus,
		logger:     opts.Logger,
		sound:      opts.SoundEnabled,
		desktopOn:  opts.DesktopOn,
		previewLen: opts.PreviewLength,
	}
}

// Notify surfaces one representative message. The three channels are
// independent; a failure in one never blocks the others.
func (d *Dispatcher) Notify(msg store.Message) {
	title := msg.SenderName
	if title == "" {
		title = "New message"
	}
	body := Preview(msg.Body, d.previewLen)

	if d.sound && d.player != nil {
		if err := d.player.Play(Chime(), ChimeSampleRate); err != nil {
			d.logger.Warn("chime playback failed", zap.Error(err))
		}
	}

	if d.desktopOn && d.desktop != nil {
		switch d.desktop.Permission() {
		case PermissionGranted:
			if err := d.desktop.Notify(title, body); err != nil {
				d.logger.Warn("desktop notification failed", zap.Error(err))
			}
		case PermissionDefault:
			// Ask now, notify next time.
			d.desktop.RequestPermission()
		case PermissionDenied:
		}
	}

	// The toast fires regardless of desktop permission state.
	d.bus.Emit("notify.toast", bus.Toast{
		Title:    title,
		Body:     body,
		Duration: ToastDuration,
	})
}

// Preview truncates body to at most n runes, rune-safe, with an ellipsis.
func Preview(body string, n int) string {
	runes := []rune(body)
	if len(runes) <= n {
		return body
	}
	return string(runes[:n-1]) + "…"
}
