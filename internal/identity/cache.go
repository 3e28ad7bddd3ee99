package identity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mentionmap/slack-mention-map/internal/metrics"
	"github.com/mentionmap/slack-mention-map/internal/slack"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// FailureTTL is how long a failed lookup is answered with the placeholder
// before the remote API is asked again
const FailureTTL = 10 * time.Minute

// Cache memoizes user id -> display name for the lifetime of the process.
//
// Resolved names are never invalidated. Concurrent Resolve calls for the
// same id share one remote lookup. A failed lookup is remembered for
// FailureTTL only, and a lookup cut short by its context is not remembered.
type Cache struct {
	api     slack.IdentityAPI
	metrics metrics.Recorder
	now     func() time.Time

	mu     sync.RWMutex
	names  map[string]string
	failed map[string]time.Time
	group  singleflight.Group
}

// NewCache creates an empty cache backed by api
func NewCache(api slack.IdentityAPI, recorder metrics.Recorder) *Cache {
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	return &Cache{
		api:     api,
		metrics: recorder,
		now:     time.Now,
		names:   make(map[string]string),
		failed:  make(map[string]time.Time),
	}
}

// Placeholder is the name used when a user cannot be looked up
func Placeholder(userID string) string {
	return fmt.Sprintf("User %s", userID)
}

// Resolve returns the display name for userID. It never fails.
func (c *Cache) Resolve(ctx context.Context, userID string) string {
	if name, ok := c.lookup(userID); ok {
		c.metrics.IncIdentityCacheHits()
		return name
	}

	v, _, _ := c.group.Do(userID, func() (interface{}, error) {
		// Another caller may have filled the entry between lookup and Do.
		if name, ok := c.lookup(userID); ok {
			return name, nil
		}

		if c.recentlyFailed(userID) {
			return Placeholder(userID), nil
		}

		name, err := c.api.UserName(ctx, userID)
		if err == nil && name != "" {
			c.metrics.IncIdentityLookups("success")
			c.mu.Lock()
			c.names[userID] = name
			delete(c.failed, userID)
			c.mu.Unlock()
			return name, nil
		}

		if ctx.Err() != nil {
			c.metrics.IncIdentityLookups("cancelled")
			return Placeholder(userID), nil
		}

		logrus.Warnf("Failed to look up user %s, using placeholder: %v", userID, err)
		c.metrics.IncIdentityLookups("error")
		c.mu.Lock()
		c.failed[userID] = c.now()
		c.mu.Unlock()

		return Placeholder(userID), nil
	})

	return v.(string)
}

// Len returns the number of cached ids
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}

func (c *Cache) recentlyFailed(userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	at, ok := c.failed[userID]
	return ok && c.now().Sub(at) < FailureTTL
}

func (c *Cache) lookup(userID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[userID]
	return name, ok
}
