// Package avatar validates fetched profile pictures and generates a
// deterministic fallback identicon when the provider returns a placeholder.
package avatar

import (
	"bytes"
	"context"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"

	// Providers serve avatars in any of these formats.
	_ "image/gif"
	_ "image/jpeg"
)

// Size is the edge length in pixels of a generated identicon.
const Size = 120

const grid = 5

// Fetcher fetches raw avatar bytes for a participant. The provider client
// implements it.
type Fetcher interface {
	FetchAvatar(ctx context.Context, participantID string) ([]byte, error)
}

// IsPlaceholder reports whether data is unusable as an avatar: not a
// decodable image, or a degenerate one-pixel placeholder some providers
// return instead of a 404.
func IsPlaceholder(data []byte) bool {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return true
	}
	return cfg.Width <= 1 || cfg.Height <= 1
}

// Resolve returns usable avatar bytes for the participant. Fetch failures
// and placeholder responses fall back to a generated identicon, so the
// caller always gets something renderable.
func Resolve(ctx context.Context, f Fetcher, participantID string) []byte {
	if f != nil {
		data, err := f.FetchAvatar(ctx, participantID)
		if err == nil && !IsPlaceholder(data) {
			return data
		}
	}
	return Identicon(participantID)
}

// Identicon renders a deterministic PNG for the given seed: a 5x5 grid
// mirrored around the vertical axis, colored from a hash of the seed. The
// same seed always yields the same image.
func Identicon(seed string) []byte {
	h := fnv.New64a()
	h.Write([]byte(seed))
	sum := h.Sum64()

	fg := color.NRGBA{
		R: uint8(sum>>40)&0x7f + 0x40,
		G: uint8(sum>>48)&0x7f + 0x40,
		B: uint8(sum>>56)&0x7f + 0x40,
		A: 0xff,
	}
	bg := color.NRGBA{R: 0xee, G: 0xee, B: 0xee, A: 0xff}

	img := image.NewNRGBA(image.Rect(0, 0, Size, Size))
	cell := Size / grid
	for y := 0; y < grid; y++ {
		for x := 0; x < grid; x++ {
			// Mirror the left three columns onto the right.
			col := x
			if col > grid/2 {
				col = grid - 1 - col
			}
			bit := sum >> (uint(y*3+col) & 63) & 1
			c := bg
			if bit == 1 {
				c = fg
			}
			fill(img, x*cell, y*cell, cell, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func fill(img *image.NRGBA, x0, y0, n int, c color.NRGBA) {
	for y := y0; y < y0+n; y++ {
		for x := x0; x < x0+n; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}
