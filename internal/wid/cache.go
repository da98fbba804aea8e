package wid

import "sync"

// Cache accumulates observed mappings from ephemeral lid identifiers to
// stable phone-number identifiers. It is populated opportunistically,
// whenever a participant record carrying both forms passes through the
// store, and never evicts or invalidates. Entries are hints, not ground
// truth: a resolved identifier may still be a fallback guess.
//
// Each store owns its own Cache so that independent accounts never share
// mappings.
type Cache struct {
	mu  sync.RWMutex
	pns map[string]string
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{pns: make(map[string]string)}
}

// Learn records that lid and pn address the same participant. Both the
// normalized lid and its bare user become resolvable. Pairs that do not
// decode, or whose first identifier is not ephemeral, are ignored.
func (c *Cache) Learn(lid, pn string) {
	j, ok := Decode(lid)
	if !ok || !j.IsEphemeral() {
		return
	}
	stable := Normalize(pn)
	if stable == "" {
		return
	}
	c.mu.Lock()
	c.pns[Normalize(lid)] = stable
	c.pns[j.User] = stable
	c.mu.Unlock()
}

// Resolve translates an ephemeral identifier to its stable phone-number
// form. Non-ephemeral identifiers pass through unchanged. Without a
// cached mapping the lid server suffix is substituted as a
// non-authoritative fallback.
func (c *Cache) Resolve(id string) string {
	j, ok := Decode(id)
	if !ok || !j.IsEphemeral() {
		return id
	}

	c.mu.RLock()
	stable, hit := c.pns[Normalize(id)]
	if !hit {
		stable, hit = c.pns[j.User]
	}
	c.mu.RUnlock()
	if hit {
		return stable
	}

	server := DefaultServer
	if j.Domain == DomainHostedLID {
		server = HostedServer
	}
	return Encode(j.User, server, j.Device, j.Agent)
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pns)
}
