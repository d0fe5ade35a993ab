package avatar

import (
	"context"
	"sync"
)

// Service memoizes resolved avatars per participant so reopening a
// conversation does not refetch the same picture.
type Service struct {
	fetcher Fetcher

	mu    sync.Mutex
	cache map[string][]byte
}

// NewService creates a service. A nil fetcher yields identicons only.
func NewService(f Fetcher) *Service {
	return &Service{fetcher: f, cache: make(map[string][]byte)}
}

// Avatar returns renderable avatar bytes for the participant, fetching and
// falling back on first use and serving the memoized result afterwards.
func (s *Service) Avatar(ctx context.Context, participantID string) []byte {
	s.mu.Lock()
	if data, ok := s.cache[participantID]; ok {
		s.mu.Unlock()
		return data
	}
	s.mu.Unlock()

	data := Resolve(ctx, s.fetcher, participantID)

	s.mu.Lock()
	s.cache[participantID] = data
	s.mu.Unlock()
	return data
}
