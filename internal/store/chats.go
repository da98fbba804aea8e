package store

import "go.uber.org/zap"

// UpsertChats inserts or replaces chats in the sorted collection.
func (s *Store) UpsertChats(chats []Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chats {
		if c.ID == "" {
			continue
		}
		s.chats.Upsert(c)
	}
}

// UpdateChats applies partial chat updates. Patches for unknown chats
// are dropped.
func (s *Store) UpdateChats(patches []ChatPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patches {
		s.updateChatLocked(p)
	}
}

func (s *Store) updateChatLocked(p ChatPatch) {
	_, ok := s.chats.Update(p.ID, func(c *Chat) {
		if p.Name != nil {
			c.Name = *p.Name
		}
		if p.Pinned != nil {
			c.Pinned = *p.Pinned
		}
		if p.Archived != nil {
			c.Archived = *p.Archived
		}
		if p.ConversationTimestamp != nil {
			c.ConversationTimestamp = *p.ConversationTimestamp
		}
		if p.UnreadCount != nil {
			// Positive patches accumulate; zero or negative values reset.
			if *p.UnreadCount > 0 {
				c.UnreadCount += *p.UnreadCount
			} else {
				c.UnreadCount = *p.UnreadCount
			}
		}
	})
	if !ok {
		s.log.Debug("chat update for unknown chat", zap.String("chat", p.ID))
	}
}

// DeleteChats removes chats by id. Message lists are left in place; a
// re-appearing chat picks its history back up.
func (s *Store) DeleteChats(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.chats.Delete(id)
	}
}

// Chats returns all chats in display order: pinned first, unarchived
// before archived, most recent first.
func (s *Store) Chats() []Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chats.All()
}

// GetChat returns one chat by id.
func (s *Store) GetChat(id string) (Chat, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chats.Get(id)
}
