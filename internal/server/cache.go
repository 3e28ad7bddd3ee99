package server

import (
	"github.com/coocood/freecache"
	"github.com/sirupsen/logrus"
)

// ResponseCache keeps encoded responses keyed by snapshot id
type ResponseCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
}

type freeCache struct {
	cache *freecache.Cache
}

// NewResponseCache returns a freecache of sizeMB megabytes, or a no-op cache when sizeMB <= 0.
// Entries never expire: a snapshot id always maps to the same bytes.
func NewResponseCache(sizeMB int) ResponseCache {
	if sizeMB <= 0 {
		logrus.Info("Response cache disabled")
		return noopCache{}
	}
	return &freeCache{cache: freecache.NewCache(sizeMB * 1024 * 1024)}
}

func (c *freeCache) Get(key string) ([]byte, bool) {
	val, err := c.cache.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *freeCache) Set(key string, value []byte) {
	if err := c.cache.Set([]byte(key), value, 0); err != nil {
		// Oversized entries are simply not cached.
		logrus.Debugf("Response cache rejected %s: %v", key, err)
	}
}

type noopCache struct{}

func (noopCache) Get(_ string) ([]byte, bool) { return nil, false }
func (noopCache) Set(_ string, _ []byte)      {}
