package draft

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/imyashkale/mcphub/internal/logger"
)

// Store keeps open drafts for a limited time. A draft dropped from the
// store, by Delete or by expiry, is closed.
type Store struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewStore creates a draft store whose entries expire after ttl of inactivity
func NewStore(ttl time.Duration) *Store {
	cleanup := ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}

	c := cache.New(ttl, cleanup)
	c.OnEvicted(func(id string, v interface{}) {
		if d, ok := v.(*Draft); ok {
			d.Close()
			logger.WithField("draft_id", id).Debug("Draft evicted")
		}
	})

	return &Store{cache: c, ttl: ttl}
}

// Put stores d under its id
func (s *Store) Put(d *Draft) {
	s.cache.Set(d.Id(), d, cache.DefaultExpiration)
}

// Get returns the draft and extends its lifetime
func (s *Store) Get(id string) (*Draft, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	d := v.(*Draft)
	if d.Closed() {
		s.cache.Delete(id)
		return nil, false
	}
	s.cache.Set(id, d, cache.DefaultExpiration)
	return d, true
}

// Delete closes and removes the draft
func (s *Store) Delete(id string) bool {
	if _, ok := s.cache.Get(id); !ok {
		return false
	}
	s.cache.Delete(id)
	return true
}

// Len returns the number of stored drafts, expired ones included until
// the next cleanup.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// Close closes every stored draft. Items() skips expired entries, so those
// are evicted first.
func (s *Store) Close() {
	s.cache.DeleteExpired()
	for id := range s.cache.Items() {
		s.cache.Delete(id)
	}
}
