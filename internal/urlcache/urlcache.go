// Package urlcache memoizes display URLs for stored objects.
package urlcache

import (
	"context"
	"fmt"
	"net/url"
)

// Resolver returns the public URL of an object.
type Resolver interface {
	PublicURL(ctx context.Context, path string) (string, error)
}

type key struct {
	path, buster string
}

// Cache maps (path, cache buster) to a display URL. It is owned by the
// display loop and is not safe for concurrent use.
type Cache struct {
	resolver Resolver
	entries  map[key]string
}

// New returns an empty Cache.
func New(r Resolver) *Cache {
	return &Cache{resolver: r, entries: make(map[key]string)}
}

// Resolve returns the URL for path, tagged with buster as the v query
// parameter when buster is set. Failures are not cached.
func (c *Cache) Resolve(ctx context.Context, path, buster string) (string, error) {
	k := key{path, buster}
	if u, ok := c.entries[k]; ok {
		return u, nil
	}
	base, err := c.resolver.PublicURL(ctx, path)
	if err != nil {
		return "", err
	}
	u := base
	if buster != "" {
		parsed, err := url.Parse(base)
		if err != nil {
			return "", fmt.Errorf("error: bad public url %q: %w", base, err)
		}
		q := parsed.Query()
		q.Set("v", buster)
		parsed.RawQuery = q.Encode()
		u = parsed.String()
	}
	c.entries[k] = u
	return u, nil
}

// Reset drops every entry.
func (c *Cache) Reset() {
	clear(c.entries)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return len(c.entries) }
