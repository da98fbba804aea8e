package store

import (
	"go.uber.org/zap"

	"github.com/tfaria/wsync/internal/collection"
)

// ApplyHistory applies an authoritative bulk sync. On-demand page
// fetches are ignored. When the payload declares itself the latest
// state, chats and message lists are cleared first and contacts absent
// from the new set are dropped, turning the merge into a replace. Chats
// insert only if absent, contacts merge additively, and messages prepend
// so older batches land before what is already known.
func (s *Store) ApplyHistory(h HistorySync) HistoryResult {
	if h.SyncType == SyncOnDemand {
		return HistoryResult{Ignored: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if h.IsLatest {
		s.chats.Clear()
		s.messages = make(map[string]*collection.Dict[Message])
	}

	inserted := s.chats.InsertIfAbsent(h.Chats...)

	if h.IsLatest {
		next := make(map[string]bool, len(h.Contacts))
		for _, c := range h.Contacts {
			next[c.ID] = true
		}
		for id := range s.contacts {
			if !next[id] {
				delete(s.contacts, id)
			}
		}
	}
	for _, c := range h.Contacts {
		if c.ID == "" {
			continue
		}
		s.mergeContactLocked(c)
	}

	prepended := 0
	for _, m := range h.Messages {
		if m.ChatID == "" || m.ID == "" {
			continue
		}
		s.chatMessagesLocked(m.ChatID).Upsert(m, collection.Prepend)
		prepended++
	}

	s.log.Debug("history sync applied",
		zap.String("type", h.SyncType),
		zap.Bool("latest", h.IsLatest),
		zap.Int("new_chats", len(inserted)),
		zap.Int("contacts", len(h.Contacts)),
		zap.Int("messages", prepended))

	return HistoryResult{
		NewChats: len(inserted),
		Contacts: len(h.Contacts),
		Messages: prepended,
	}
}
