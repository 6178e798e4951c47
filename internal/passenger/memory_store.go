package passenger

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory passenger store for development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	byReq map[string][]*Passenger
}

// NewMemoryStore creates a new in-memory passenger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byReq: make(map[string][]*Passenger)}
}

func (s *MemoryStore) ReplaceForRequest(ctx context.Context, requestID string, passengers []*Passenger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]*Passenger, len(passengers))
	for i, p := range passengers {
		c := *p
		list[i] = &c
	}
	s.byReq[requestID] = list
	return nil
}

func (s *MemoryStore) ListForRequest(ctx context.Context, requestID string) ([]*Passenger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Passenger, 0, len(s.byReq[requestID]))
	for _, p := range s.byReq[requestID] {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}
