package classify

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"

	"sjsage522/srpauditor/logger"
	apperrors "sjsage522/srpauditor/pkg/errors"
	"sjsage522/srpauditor/services/store"
)

// Store keys of the persisted cache
const (
	CacheKey   = "image_cache"
	EnabledKey = "image_cache_enabled"
)

// Policy decides which verdicts are written to the cache
type Policy string

const (
	PolicyPositiveOnly Policy = "positive-only"
	PolicyAll          Policy = "all"
	PolicyDisabled     Policy = "disabled"
)

type cacheEntry struct {
	Size        int64 `json:"size"`
	Placeholder bool  `json:"placeholder"`
}

// Cache maps an image byte size to its last placeholder verdict
type Cache struct {
	store   store.Store
	policy  Policy
	mu      sync.Mutex
	entries map[int64]bool
	order   []int64
	enabled bool
	log     *logger.Logger
}

// NewCache creates a cache over s. Call Load before use.
func NewCache(s store.Store, policy Policy) *Cache {
	if policy == "" {
		policy = PolicyPositiveOnly
	}
	return &Cache{
		store:   s,
		policy:  policy,
		entries: make(map[int64]bool),
		log:     logger.ForComponent("image-cache"),
	}
}

// Load reads the toggle and the persisted entries. A disabled cache clears
// whatever an earlier run persisted.
func (c *Cache) Load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	enabled := c.policy != PolicyDisabled
	if enabled {
		raw, err := c.store.Get(ctx, EnabledKey)
		switch {
		case err == nil:
			if v, perr := strconv.ParseBool(string(raw)); perr == nil {
				enabled = v
			}
		case !errors.Is(err, store.ErrNotFound):
			return apperrors.NewStore("failed to read cache toggle", err)
		}
	}
	c.enabled = enabled
	c.entries = make(map[int64]bool)
	c.order = nil

	if !enabled {
		if err := c.store.Delete(ctx, CacheKey); err != nil {
			return apperrors.NewStore("failed to clear image cache", err)
		}
		c.log.Info().Msg("Image cache disabled; persisted entries cleared")
		return nil
	}

	raw, err := c.store.Get(ctx, CacheKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperrors.NewStore("failed to read image cache", err)
	}

	var list []cacheEntry
	if err := json.Unmarshal(raw, &list); err != nil {
		c.log.Warn().Err(err).Msg("Discarding unreadable image cache")
		return nil
	}
	for _, e := range list {
		if _, ok := c.entries[e.Size]; ok {
			continue
		}
		c.entries[e.Size] = e.Placeholder
		c.order = append(c.order, e.Size)
	}
	c.log.Debug().Int("entries", len(c.order)).Msg("Image cache loaded")
	return nil
}

// Enabled reports whether lookups and writes are active
func (c *Cache) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Lookup returns the cached verdict for size
func (c *Cache) Lookup(size int64) (verdict, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.enabled || size <= 0 {
		return false, false
	}
	verdict, ok = c.entries[size]
	return verdict, ok
}

// Record stores verdict for size when the policy allows it and returns
// whether anything was written. Existing entries are never replaced.
func (c *Cache) Record(ctx context.Context, size int64, verdict bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || size <= 0 {
		return false, nil
	}
	if c.policy == PolicyPositiveOnly && !verdict {
		return false, nil
	}
	if _, ok := c.entries[size]; ok {
		return false, nil
	}

	c.entries[size] = verdict
	c.order = append(c.order, size)
	if err := c.persist(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Len returns the number of cached sizes
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Clear drops every entry, in memory and in the store
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int64]bool)
	c.order = nil
	if err := c.store.Delete(ctx, CacheKey); err != nil {
		return apperrors.NewStore("failed to clear image cache", err)
	}
	return nil
}

// SetEnabled persists the toggle. Disabling clears the cache.
func (c *Cache) SetEnabled(ctx context.Context, enabled bool) error {
	if err := c.store.Set(ctx, EnabledKey, []byte(strconv.FormatBool(enabled))); err != nil {
		return apperrors.NewStore("failed to write cache toggle", err)
	}
	if !enabled {
		if err := c.Clear(ctx); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.enabled = enabled && c.policy != PolicyDisabled
	c.mu.Unlock()
	return nil
}

// persist must be called with mu held
func (c *Cache) persist(ctx context.Context) error {
	list := make([]cacheEntry, 0, len(c.order))
	for _, size := range c.order {
		list = append(list, cacheEntry{Size: size, Placeholder: c.entries[size]})
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return apperrors.NewStore("failed to encode image cache", err)
	}
	if err := c.store.Set(ctx, CacheKey, raw); err != nil {
		return apperrors.NewStore("failed to write image cache", err)
	}
	return nil
}
