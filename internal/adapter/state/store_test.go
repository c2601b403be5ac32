package state

import (
	"sync"
	"testing"
	"time"

	"github.com/berfenger/oigshield2mqtt/internal/core/shield"

	"github.com/stretchr/testify/assert"
)

func TestStoreReadUpdate(t *testing.T) {

	assert := assert.New(t)
	s := NewStore()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, ok := s.Read("box_prms_mode")
	assert.False(ok)

	s.Update(map[string]any{"box_prms_mode": "Home 1", "invertor_prm1_p_max_feed_grid": 5000.0})
	v, ok := s.Read("box_prms_mode")
	assert.True(ok)
	assert.Equal("Home 1", v)
	assert.Equal(2, s.Len())

	at, ok := s.UpdatedAt("box_prms_mode")
	assert.True(ok)
	assert.Equal(now, at)

	s.Update(map[string]any{"box_prms_mode": "Home 2"})
	v, _ = s.Read("box_prms_mode")
	assert.Equal("Home 2", v)
	v, _ = s.Read("invertor_prm1_p_max_feed_grid")
	assert.Equal(5000.0, v)

	s.Forget("box_prms_mode")
	_, ok = s.Read("box_prms_mode")
	assert.False(ok)
	assert.Equal(map[string]any{"invertor_prm1_p_max_feed_grid": 5000.0}, s.Snapshot())
}

func TestStoreConcurrentAccess(t *testing.T) {

	assert := assert.New(t)
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Update(map[string]any{"mode": j})
				s.Read("mode")
			}
		}(i)
	}
	wg.Wait()

	v, ok := s.Read("mode")
	assert.True(ok)
	assert.Equal(99, v)
}

var _ shield.StateObserver = (*Store)(nil)
