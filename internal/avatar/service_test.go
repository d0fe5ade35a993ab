package avatar

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

type countingFetcher struct {
	calls int
	data  []byte
	err   error
}

func (f *countingFetcher) FetchAvatar(context.Context, string) ([]byte, error) {
	f.calls++
	return f.data, f.err
}

func TestServiceMemoizes(t *testing.T) {
	f := &countingFetcher{data: encodePNG(t, 32, 32)}
	s := NewService(f)

	first := s.Avatar(context.Background(), "u1")
	second := s.Avatar(context.Background(), "u1")
	if f.calls != 1 {
		t.Errorf("fetcher called %d times for the same participant, want 1", f.calls)
	}
	if !bytes.Equal(first, second) {
		t.Error("memoized result differs from the fetched one")
	}

	s.Avatar(context.Background(), "u2")
	if f.calls != 2 {
		t.Errorf("fetcher called %d times across two participants, want 2", f.calls)
	}
}

func TestServiceMemoizesFallback(t *testing.T) {
	f := &countingFetcher{err: errors.New("rate limited")}
	s := NewService(f)

	got := s.Avatar(context.Background(), "u1")
	if !bytes.Equal(got, Identicon("u1")) {
		t.Fatal("fetch failure should yield the identicon")
	}
	s.Avatar(context.Background(), "u1")
	if f.calls != 1 {
		t.Errorf("fetcher retried %d times, want the fallback memoized after 1", f.calls)
	}
}

func TestServiceWithoutFetcher(t *testing.T) {
	s := NewService(nil)
	if got := s.Avatar(context.Background(), "u1"); !bytes.Equal(got, Identicon("u1")) {
		t.Error("nil fetcher should serve identicons")
	}
}
