package rating

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory rating store for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	ratings map[string]*Rating
	byPair  map[string]bool // offerID + "/" + raterID
}

// NewMemoryStore creates a new in-memory rating store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ratings: make(map[string]*Rating),
		byPair:  make(map[string]bool),
	}
}

func (s *MemoryStore) Create(ctx context.Context, r *Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.OfferID + "/" + r.RaterID
	if s.byPair[key] {
		return ErrAlreadyRated
	}
	c := *r
	s.ratings[r.ID] = &c
	s.byPair[key] = true
	return nil
}

func (s *MemoryStore) ListForAccount(ctx context.Context, accountID string, limit int) ([]*Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Rating
	for _, r := range s.ratings {
		if r.RatedID == accountID {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SummaryForAccount(ctx context.Context, accountID string) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := &Summary{AccountID: accountID}
	total := 0
	for _, r := range s.ratings {
		if r.RatedID == accountID {
			sum.Count++
			total += r.Stars
		}
	}
	if sum.Count > 0 {
		sum.Average = float64(total) / float64(sum.Count)
	}
	return sum, nil
}
