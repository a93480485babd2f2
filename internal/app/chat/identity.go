/*
Package chat contains the core logic of the real-time case-chat subsystem.

This file defines the IdentityCache, a process-lifetime memo of sender display
identities. It exists purely to avoid one directory lookup per message when a sender
is chatty within a process lifetime; entries are never invalidated, so later profile
edits only show up after a restart (an accepted staleness tradeoff).
*/
package chat

import (
	"context"
	"sync"

	"lawchat/internal/app/directory"
)

// IdentityLookup resolves the display identity of a user. It is implemented by the
// directory repository in production and by fakes in tests.
type IdentityLookup interface {
	GetIdentity(ctx context.Context, userID string) (directory.Identity, error)
}

// IdentityCache memoizes sender display identities keyed by user id.
type IdentityCache struct {
	lookup IdentityLookup

	mu      sync.RWMutex
	entries map[string]directory.Identity
}

// NewIdentityCache constructs an empty cache backed by the given lookup.
func NewIdentityCache(lookup IdentityLookup) *IdentityCache {
	return &IdentityCache{
		lookup:  lookup,
		entries: make(map[string]directory.Identity),
	}
}

// Resolve returns the cached identity for userID, fetching and caching it on first use.
// Lookup failures are returned to the caller and nothing is cached, so a transient
// directory outage does not poison the cache.
func (c *IdentityCache) Resolve(ctx context.Context, userID string) (directory.Identity, error) {
	c.mu.RLock()
	identity, ok := c.entries[userID]
	c.mu.RUnlock()

	if ok {
		return identity, nil
	}

	fetched, err := c.lookup.GetIdentity(ctx, userID)
	if err != nil {
		return directory.Identity{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A concurrent resolve for the same user may have won the race; keep the
	// first stored entry so all messages in flight agree on the identity.
	if existing, ok := c.entries[userID]; ok {
		return existing, nil
	}

	c.entries[userID] = fetched
	return fetched, nil
}
