package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/dscengine/internal/domain"
)

// EventStore keeps committed engine events in append order.
type EventStore struct {
	mu     sync.RWMutex
	events []domain.Event
}

// NewEventStore creates an empty event store.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Append stores ev.
func (s *EventStore) Append(_ context.Context, ev domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// List returns events newest first, filtered and paginated by opts.
func (s *EventStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for i := len(s.events) - 1; i >= 0; i-- {
		ev := s.events[i]
		if opts.Since != nil && ev.At.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && ev.At.After(*opts.Until) {
			continue
		}
		out = append(out, ev)
	}
	return paginate(out, opts), nil
}

// ListBefore returns events strictly older than before, oldest first.
func (s *EventStore) ListBefore(_ context.Context, before time.Time) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, ev := range s.events {
		if ev.At.Before(before) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

var _ domain.EventStore = (*EventStore)(nil)
