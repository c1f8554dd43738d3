// Package memory provides an in-memory interval store for local development
// and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/timelog/internal/domain"
)

// Notifier receives the mutation signal recorded with each write. The
// in-memory store delivers it synchronously in place of an outbox row.
type Notifier func(ownerID, eventType string)

// Store keeps intervals in a mutex-guarded map.
type Store struct {
	mu        sync.RWMutex
	intervals map[string]domain.TimeInterval
	notify    Notifier
}

// NewStore constructs an empty Store. notify may be nil.
func NewStore(notify Notifier) *Store {
	return &Store{
		intervals: make(map[string]domain.TimeInterval),
		notify:    notify,
	}
}

func (s *Store) emit(ownerID, eventType string) {
	if s.notify != nil {
		s.notify(ownerID, eventType)
	}
}

// ListIntervals returns the owner's intervals, newest start first.
func (s *Store) ListIntervals(ctx context.Context, ownerID string) ([]domain.TimeInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TimeInterval, 0)
	for _, iv := range s.intervals {
		if iv.OwnerID == ownerID {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(out[j].StartAt) {
			return out[i].StartAt.After(out[j].StartAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// ListIntervalsPage returns one page of the owner's intervals.
func (s *Store) ListIntervalsPage(ctx context.Context, ownerID string, cursor *domain.Cursor, limit int) ([]domain.TimeInterval, *domain.Cursor, error) {
	all, err := s.ListIntervals(ctx, ownerID)
	if err != nil {
		return nil, nil, err
	}

	start := 0
	if cursor != nil {
		for i, iv := range all {
			if iv.StartAt.Before(cursor.StartAt) || (iv.StartAt.Equal(cursor.StartAt) && iv.ID < cursor.ID) {
				start = i
				break
			}
			start = len(all)
		}
	}

	if limit <= 0 {
		limit = 20
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := all[start:end]

	var next *domain.Cursor
	if end < len(all) && len(page) > 0 {
		last := page[len(page)-1]
		next = &domain.Cursor{StartAt: last.StartAt, ID: last.ID}
	}
	return page, next, nil
}

// GetInterval fetches one interval scoped to the owner.
func (s *Store) GetInterval(ctx context.Context, ownerID, id string) (*domain.TimeInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	iv, ok := s.intervals[id]
	if !ok || iv.OwnerID != ownerID {
		return nil, nil
	}
	return &iv, nil
}

// FindOpenInterval returns the owner's running interval, if any.
func (s *Store) FindOpenInterval(ctx context.Context, ownerID string) (*domain.TimeInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, iv := range s.intervals {
		if iv.OwnerID == ownerID && iv.EndAt == nil {
			found := iv
			return &found, nil
		}
	}
	return nil, nil
}

// CreateInterval stores a new interval and emits interval.created.
func (s *Store) CreateInterval(ctx context.Context, iv domain.TimeInterval) error {
	s.mu.Lock()
	s.intervals[iv.ID] = iv
	s.mu.Unlock()

	s.emit(iv.OwnerID, "interval.created")
	return nil
}

// UpdateInterval replaces a stored interval and emits interval.stopped when
// the write closes it, interval.changed otherwise.
func (s *Store) UpdateInterval(ctx context.Context, iv domain.TimeInterval) error {
	s.mu.Lock()
	prev, existed := s.intervals[iv.ID]
	s.intervals[iv.ID] = iv
	s.mu.Unlock()

	eventType := "interval.changed"
	if existed && prev.EndAt == nil && iv.EndAt != nil {
		eventType = "interval.stopped"
	}
	s.emit(iv.OwnerID, eventType)
	return nil
}

// DeleteInterval removes an interval and emits interval.deleted.
func (s *Store) DeleteInterval(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	delete(s.intervals, id)
	s.mu.Unlock()

	s.emit(ownerID, "interval.deleted")
	return nil
}
