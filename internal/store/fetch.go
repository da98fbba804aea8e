package store

import "context"

// ProfilePictureFetcher resolves a contact's picture URL on demand. An
// empty URL means the contact has no picture.
type ProfilePictureFetcher interface {
	ProfilePicture(ctx context.Context, id string) (string, error)
}

// GroupFetcher resolves group metadata on demand.
type GroupFetcher interface {
	GroupInfo(ctx context.Context, id string) (GroupMetadata, error)
}

// FetchImageURL returns the profile picture URL cached for id, fetching
// through the collaborator on first use. Fetched-and-absent is cached
// too, so contacts without a picture do not trigger refetch storms. The
// second return value reports whether a picture exists.
func (s *Store) FetchImageURL(ctx context.Context, id string) (string, bool) {
	s.mu.RLock()
	c, ok := s.contacts[id]
	s.mu.RUnlock()
	if ok && c.ImageURL != nil {
		return *c.ImageURL, *c.ImageURL != ""
	}
	if s.pictures == nil {
		return "", false
	}
	url := s.refreshImage(ctx, id)
	return url, url != ""
}

// refreshImage always fetches, collapsing concurrent calls for the same
// id onto one in-flight request. Fetch errors cache as absent; whichever
// fetch finishes last wins the cache slot.
func (s *Store) refreshImage(ctx context.Context, id string) string {
	v, _, _ := s.fetches.Do("img:"+id, func() (any, error) {
		url, err := s.pictures.ProfilePicture(ctx, id)
		if err != nil {
			url = ""
		}
		s.mu.Lock()
		c, ok := s.contacts[id]
		if !ok {
			c = Contact{ID: id}
		}
		c.ImageURL = &url
		s.contacts[id] = c
		s.mu.Unlock()
		return url, nil
	})
	return v.(string)
}

// FetchGroupMetadata returns cached metadata for a group, fetching it
// through the collaborator on a miss. Participant records observed this
// way feed the lid resolution cache. Fetch failures are reported as
// absent, not cached.
func (s *Store) FetchGroupMetadata(ctx context.Context, id string) (GroupMetadata, bool) {
	s.mu.RLock()
	g, ok := s.groups[id]
	s.mu.RUnlock()
	if ok {
		return g.detached(), true
	}
	if s.groupInfo == nil {
		return GroupMetadata{}, false
	}
	v, err, _ := s.fetches.Do("grp:"+id, func() (any, error) {
		g, err := s.groupInfo.GroupInfo(ctx, id)
		if err != nil {
			return GroupMetadata{}, err
		}
		s.mu.Lock()
		s.storeGroupLocked(g)
		s.mu.Unlock()
		return g, nil
	})
	if err != nil {
		return GroupMetadata{}, false
	}
	return v.(GroupMetadata).detached(), true
}
