package state

import (
	"time"

	cmap "github.com/orcaman/concurrent-map"
)

// Store is the last observed value of every box resource. It is written by the
// telemetry actor and read by the shield.
type Store struct {
	values  cmap.ConcurrentMap
	updated cmap.ConcurrentMap
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		values:  cmap.New(),
		updated: cmap.New(),
		now:     time.Now,
	}
}

// Read returns the observed value of a resource, false if it was never seen.
func (s *Store) Read(resourceID string) (any, bool) {
	return s.values.Get(resourceID)
}

// Update replaces the observed values. Resources absent from values keep their
// previous value.
func (s *Store) Update(values map[string]any) {
	now := s.now()
	for id, v := range values {
		s.values.Set(id, v)
		s.updated.Set(id, now)
	}
}

func (s *Store) Forget(resourceID string) {
	s.values.Remove(resourceID)
	s.updated.Remove(resourceID)
}

// UpdatedAt returns when a resource was last written.
func (s *Store) UpdatedAt(resourceID string) (time.Time, bool) {
	v, ok := s.updated.Get(resourceID)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}

func (s *Store) Snapshot() map[string]any {
	return s.values.Items()
}

func (s *Store) Len() int {
	return s.values.Count()
}
