package notify

import (
	"github.com/pageinbox/inboxd/internal/bus"
)

// ChimePayload carries raw PCM to whichever front end owns the audio device.
type ChimePayload struct {
	PCM        []byte `json:"pcm"`
	SampleRate int    `json:"sample_rate"`
}

// DesktopPayload carries a desktop notification request over the bus.
type DesktopPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// BusPlayer publishes chime audio on the bus instead of playing it in
// process. The daemon has no audio device; attached front ends do.
type BusPlayer struct {
	Bus *bus.Bus
}

func (p *BusPlayer) Play(pcm []byte, sampleRate int) error {
	p.Bus.Emit("notify.chime", ChimePayload{PCM: pcm, SampleRate: sampleRate})
	return nil
}

// BusDesktop forwards desktop notifications over the bus. Permission is
// managed by the front end, so the daemon treats it as always granted and
// lets the consumer drop the event if the user said no.
type BusDesktop struct {
	Bus *bus.Bus
}

func (d *BusDesktop) Permission() Permission { return PermissionGranted }

func (d *BusDesktop) RequestPermission() {}

func (d *BusDesktop) Notify(title, body string) error {
	d.Bus.Emit("notify.desktop", DesktopPayload{Title: title, Body: body})
	return nil
}
