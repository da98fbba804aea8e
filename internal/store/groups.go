package store

import (
	"slices"

	"go.uber.org/zap"
)

// UpdateGroups additively merges partial group metadata updates. Updates
// for unknown groups are dropped.
func (s *Store) UpdateGroups(patches []GroupPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patches {
		g, ok := s.groups[p.ID]
		if !ok {
			s.log.Debug("group update for unknown group", zap.String("group", p.ID))
			continue
		}
		if p.Subject != nil {
			g.Subject = *p.Subject
		}
		if p.Owner != nil {
			g.Owner = *p.Owner
		}
		if p.Announce != nil {
			g.Announce = *p.Announce
		}
		s.groups[p.ID] = g
	}
}

// UpdateParticipants mutates a group's member list: add appends members
// not yet present, remove filters them out, promote and demote toggle
// the admin flag. Updates for unknown groups are a no-op.
func (s *Store) UpdateParticipants(u ParticipantsUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[u.ID]
	if !ok {
		s.log.Debug("participant update for unknown group", zap.String("group", u.ID))
		return
	}

	switch u.Action {
	case ParticipantAdd:
		members := slices.Clone(g.Participants)
		for _, p := range u.Participants {
			if p.LID != "" {
				s.lids.Learn(p.LID, p.ID)
			}
			exists := slices.ContainsFunc(members, func(m GroupParticipant) bool {
				return m.ID == p.ID
			})
			if !exists {
				members = append(members, p)
			}
		}
		g.Participants = members

	case ParticipantRemove:
		gone := make(map[string]bool, len(u.Participants))
		for _, p := range u.Participants {
			gone[p.ID] = true
		}
		kept := make([]GroupParticipant, 0, len(g.Participants))
		for _, m := range g.Participants {
			if !gone[m.ID] {
				kept = append(kept, m)
			}
		}
		g.Participants = kept

	case ParticipantPromote, ParticipantDemote:
		target := make(map[string]bool, len(u.Participants))
		for _, p := range u.Participants {
			target[p.ID] = true
		}
		members := slices.Clone(g.Participants)
		for i := range members {
			if target[members[i].ID] {
				members[i].IsAdmin = u.Action == ParticipantPromote
			}
		}
		g.Participants = members

	default:
		s.log.Debug("unknown participant action",
			zap.String("group", u.ID), zap.String("action", u.Action))
		return
	}

	s.groups[u.ID] = g
}

// detached returns a copy whose participant list no longer aliases the
// store-owned backing array.
func (g GroupMetadata) detached() GroupMetadata {
	g.Participants = slices.Clone(g.Participants)
	return g
}

// GetGroup returns cached metadata for one group without fetching.
func (s *Store) GetGroup(id string) (GroupMetadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	return g.detached(), ok
}

func (s *Store) storeGroupLocked(g GroupMetadata) {
	for _, p := range g.Participants {
		if p.LID != "" {
			s.lids.Learn(p.LID, p.ID)
		}
	}
	s.groups[g.ID] = g
}
