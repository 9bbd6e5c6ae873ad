package leads

import (
	"context"
	"errors"
	"sort"
	"sync"

	"salon-leads/internal/activity"
)

// MemoryStore keeps leads in process memory. One mutex serializes every mutation, which
// makes each Update a linearizable compare-and-swap.
// It backs tests and STORE_DRIVER=memory; data is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	leads    map[string]Lead
	activity map[string][]activity.Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads:    make(map[string]Lead),
		activity: make(map[string][]activity.Entry),
	}
}

var ErrDuplicateID = errors.New("leads: duplicate id")

func (s *MemoryStore) Create(ctx context.Context, l Lead) (Lead, error) {
	if l.ID == "" {
		return Lead{}, errors.New("leads: id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.leads[l.ID]; ok {
		return Lead{}, ErrDuplicateID
	}
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	s.leads[l.ID] = l
	return l, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, p Patch, exp Expectation, entry *activity.Entry) (Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	if !exp.Holds(cur) {
		return Lead{}, &ConflictError{Current: cur}
	}

	next := p.Apply(cur)
	if entry != nil {
		next.ActivityCount++
		s.appendLocked(id, *entry, next.ActivityCount)
	}
	s.leads[id] = next
	return next, nil
}

func (s *MemoryStore) AppendActivity(ctx context.Context, id string, e activity.Entry) (activity.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leads[id]
	if !ok {
		return activity.Entry{}, ErrNotFound
	}
	cur.ActivityCount++
	s.leads[id] = cur
	return s.appendLocked(id, e, cur.ActivityCount), nil
}

func (s *MemoryStore) appendLocked(id string, e activity.Entry, seq int64) activity.Entry {
	e.LeadID = id
	e.Seq = seq
	e.CreatedAt = e.CreatedAt.UTC()
	s.activity[id] = append(s.activity[id], e)
	return e
}

func (s *MemoryStore) Activity(ctx context.Context, id string) ([]activity.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.leads[id]; !ok {
		return nil, ErrNotFound
	}
	out := make([]activity.Entry, len(s.activity[id]))
	copy(out, s.activity[id])
	activity.Sort(out)
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]Lead, error) {
	f = f.Normalize()
	s.mu.RLock()
	matched := make([]Lead, 0)
	for _, l := range s.leads {
		if f.Match(l) {
			matched = append(matched, l)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(matched)
	if f.Offset >= len(matched) {
		return []Lead{}, nil
	}
	end := f.Offset + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[f.Offset:end], nil
}

func (s *MemoryStore) Count(ctx context.Context, f Filter) (int, error) {
	f = f.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, l := range s.leads {
		if f.Match(l) {
			n++
		}
	}
	return n, nil
}

// sortNewestFirst orders by created_at descending, id descending as the tiebreak,
// matching the SQL store's ORDER BY.
func sortNewestFirst(ls []Lead) {
	sort.Slice(ls, func(i, j int) bool {
		if !ls[i].CreatedAt.Equal(ls[j].CreatedAt) {
			return ls[i].CreatedAt.After(ls[j].CreatedAt)
		}
		return ls[i].ID > ls[j].ID
	})
}
