package archive

import (
	"sync"

	"github.com/fentz26/helios/internal/classfile"
	"golang.org/x/sync/singleflight"
)

// parseCache memoizes class parsing for one archive generation. Failures are
// remembered too so malformed entries are only parsed once.
type parseCache struct {
	mu     sync.RWMutex
	parsed map[string]*classfile.Class
	failed map[string]error
	group  singleflight.Group
}

func newParseCache() *parseCache {
	return &parseCache{
		parsed: make(map[string]*classfile.Class),
		failed: make(map[string]error),
	}
}

func (c *parseCache) lookup(key string) (*classfile.Class, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cls, ok := c.parsed[key]; ok {
		return cls, true, nil
	}
	if err, ok := c.failed[key]; ok {
		return nil, true, err
	}
	return nil, false, nil
}

// getOrCompute returns the cached result for key, running fn at most once
// per key even under concurrent callers.
func (c *parseCache) getOrCompute(key string, fn func() (*classfile.Class, error)) (*classfile.Class, error) {
	if cls, ok, err := c.lookup(key); ok {
		return cls, err
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A caller that lost the race may arrive after the winner stored.
		if cls, ok, err := c.lookup(key); ok {
			return cls, err
		}
		cls, err := fn()
		c.mu.Lock()
		if err != nil {
			c.failed[key] = err
		} else {
			c.parsed[key] = cls
		}
		c.mu.Unlock()
		return cls, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*classfile.Class), nil
}

func (c *parseCache) snapshot() map[string]*classfile.Class {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*classfile.Class, len(c.parsed))
	for k, v := range c.parsed {
		out[k] = v
	}
	return out
}
