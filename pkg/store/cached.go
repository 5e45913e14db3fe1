package store

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/edgeflare/sqlgate/pkg/event"
)

type lookup struct {
	script event.Script
	found  bool
}

// CachedScripts puts an expiring LRU in front of a Scripts store. Misses are
// cached too, since most lifecycle points have no script. Writes through
// CachedScripts invalidate the affected name.
type CachedScripts struct {
	Scripts
	cache *lru.LRU[string, lookup]
}

var _ Scripts = (*CachedScripts)(nil)

func NewCachedScripts(next Scripts, size int, ttl time.Duration) *CachedScripts {
	if size <= 0 {
		size = 256
	}
	return &CachedScripts{
		Scripts: next,
		cache:   lru.NewLRU[string, lookup](size, nil, ttl),
	}
}

func (c *CachedScripts) FindScript(ctx context.Context, name string) (event.Script, bool, error) {
	if hit, ok := c.cache.Get(name); ok {
		return hit.script, hit.found, nil
	}
	s, found, err := c.Scripts.FindScript(ctx, name)
	if err != nil {
		return event.Script{}, false, err
	}
	c.cache.Add(name, lookup{script: s, found: found})
	return s, found, nil
}

func (c *CachedScripts) CreateScript(ctx context.Context, s event.Script) (event.Script, error) {
	defer c.cache.Remove(s.Name)
	return c.Scripts.CreateScript(ctx, s)
}

func (c *CachedScripts) UpdateScript(ctx context.Context, s event.Script) (event.Script, error) {
	defer c.cache.Remove(s.Name)
	return c.Scripts.UpdateScript(ctx, s)
}

func (c *CachedScripts) DeleteScript(ctx context.Context, name string) error {
	defer c.cache.Remove(name)
	return c.Scripts.DeleteScript(ctx, name)
}

// Purge drops every cached lookup.
func (c *CachedScripts) Purge() {
	c.cache.Purge()
}
