package avatar

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.SetNRGBA(0, 0, color.NRGBA{R: 0xff, A: 0xff})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIsPlaceholder(t *testing.T) {
	if IsPlaceholder(encodePNG(t, 64, 64)) {
		t.Fatal("real image flagged as placeholder")
	}
	if !IsPlaceholder(encodePNG(t, 1, 1)) {
		t.Fatal("1x1 image must be a placeholder")
	}
	if !IsPlaceholder([]byte("not an image")) {
		t.Fatal("undecodable bytes must be a placeholder")
	}
	if !IsPlaceholder(nil) {
		t.Fatal("empty bytes must be a placeholder")
	}
}

func TestIdenticonDeterministic(t *testing.T) {
	a := Identicon("participant-42")
	b := Identicon("participant-42")
	if !bytes.Equal(a, b) {
		t.Fatal("identicon must be stable for the same seed")
	}
	if bytes.Equal(a, Identicon("participant-43")) {
		t.Fatal("different seeds should produce different identicons")
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(a))
	if err != nil {
		t.Fatalf("identicon does not decode: %v", err)
	}
	if format != "png" || cfg.Width != Size || cfg.Height != Size {
		t.Fatalf("unexpected identicon shape %s %dx%d", format, cfg.Width, cfg.Height)
	}
}

type fetcherFunc func(ctx context.Context, participantID string) ([]byte, error)

func (f fetcherFunc) FetchAvatar(ctx context.Context, participantID string) ([]byte, error) {
	return f(ctx, participantID)
}

func TestResolveFallsBack(t *testing.T) {
	real := encodePNG(t, 32, 32)
	ok := fetcherFunc(func(context.Context, string) ([]byte, error) {
		return real, nil
	})
	if got := Resolve(context.Background(), ok, "p1"); !bytes.Equal(got, real) {
		t.Fatal("fetched avatar should be returned as is")
	}

	failing := fetcherFunc(func(context.Context, string) ([]byte, error) {
		return nil, errors.New("rate limited")
	})
	if got := Resolve(context.Background(), failing, "p1"); !bytes.Equal(got, Identicon("p1")) {
		t.Fatal("fetch failure should fall back to the identicon")
	}

	placeholder := fetcherFunc(func(context.Context, string) ([]byte, error) {
		return encodePNG(t, 1, 1), nil
	})
	if got := Resolve(context.Background(), placeholder, "p1"); !bytes.Equal(got, Identicon("p1")) {
		t.Fatal("placeholder response should fall back to the identicon")
	}
}
