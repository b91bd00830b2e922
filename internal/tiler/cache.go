package tiler

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-atlas/internal/style"
)

// DefaultCacheSize bounds the number of encoded tiles kept in memory.
const DefaultCacheSize = 2048

// Cache memoizes rendered tiles. Keys combine a caller-chosen style key
// (for example a session id plus its revision) with the tile address, so a
// new selection never hits tiles of the previous one.
type Cache struct {
	r     *Renderer
	tiles *lru.Cache[string, []byte]
}

// NewCache wraps r with an LRU of size entries.
func NewCache(r *Renderer, size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	tiles, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("creating tile cache: %w", err)
	}
	return &Cache{r: r, tiles: tiles}, nil
}

// Tile returns the cached tile for key or renders it with fn. The bool
// reports a cache hit.
func (c *Cache) Tile(key string, t maptile.Tile, fn style.Func) ([]byte, bool, error) {
	k := fmt.Sprintf("%s/%d/%d/%d", key, t.Z, t.X, t.Y)
	if data, ok := c.tiles.Get(k); ok {
		return data, true, nil
	}
	data, err := c.r.Tile(t, fn)
	if err != nil {
		return nil, false, err
	}
	c.tiles.Add(k, data)
	return data, false, nil
}

// Len is the number of cached tiles.
func (c *Cache) Len() int { return c.tiles.Len() }

// Purge drops every cached tile.
func (c *Cache) Purge() { c.tiles.Purge() }
