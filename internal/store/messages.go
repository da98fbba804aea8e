package store

import (
	"slices"

	"go.uber.org/zap"

	"github.com/tfaria/wsync/internal/collection"
)

func (s *Store) chatMessagesLocked(chatID string) *collection.Dict[Message] {
	d, ok := s.messages[chatID]
	if !ok {
		d = collection.NewDict(messageID)
		s.messages[chatID] = d
	}
	return d
}

// UpsertMessages appends live messages to their chats' lists. In notify
// mode a message for a chat the store has never seen synthesizes that
// chat with the message's timestamp and one unread; the synthesized
// chats are returned so the engine can announce them.
func (s *Store) UpsertMessages(u MessageUpsert) []Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	var created []Chat
	for _, m := range u.Messages {
		if m.ChatID == "" || m.ID == "" {
			continue
		}
		s.chatMessagesLocked(m.ChatID).Upsert(m, collection.Append)
		if u.Mode != UpsertNotify {
			continue
		}
		if _, ok := s.chats.Get(m.ChatID); !ok {
			chat := Chat{
				ID:                    m.ChatID,
				ConversationTimestamp: m.Timestamp,
				UnreadCount:           1,
			}
			s.chats.Upsert(chat)
			created = append(created, chat)
		}
	}
	return created
}

// UpdateMessages applies partial message updates. A patched status at or
// below the stored one is dropped, keeping delivery state monotonic
// under out-of-order events. Patches for unknown messages are dropped.
func (s *Store) UpdateMessages(patches []MessagePatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patches {
		s.updateMessageLocked(p)
	}
}

func (s *Store) updateMessageLocked(p MessagePatch) {
	d, ok := s.messages[p.Key.ChatID]
	if !ok {
		s.log.Debug("message update for unknown chat", zap.String("chat", p.Key.ChatID))
		return
	}
	found := d.Apply(p.Key.ID, func(m *Message) {
		if p.Status != nil && *p.Status > m.Status {
			m.Status = *p.Status
		}
		if p.Body != nil {
			m.Body = *p.Body
		}
	})
	if !found {
		s.log.Debug("message update for unknown message",
			zap.String("chat", p.Key.ChatID), zap.String("msg", p.Key.ID))
	}
}

// DeleteMessages removes messages by key, or clears a chat's whole list
// when All is set.
func (s *Store) DeleteMessages(d MessageDelete) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.All {
		if list, ok := s.messages[d.ChatID]; ok {
			list.Clear()
		}
		return
	}
	for _, key := range d.Keys {
		if list, ok := s.messages[key.ChatID]; ok {
			list.RemoveID(key.ID)
		}
	}
}

// ApplyReceipts merges per-participant delivery receipts into their
// messages, keyed by participant: a second receipt from the same
// participant updates the existing entry instead of adding one.
func (s *Store) ApplyReceipts(updates []ReceiptUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		d, ok := s.messages[u.Key.ChatID]
		if !ok {
			continue
		}
		d.Apply(u.Key.ID, func(m *Message) {
			m.Receipts = slices.Clone(m.Receipts)
			for i := range m.Receipts {
				if m.Receipts[i].UserID == u.Receipt.UserID {
					mergeReceipt(&m.Receipts[i], u.Receipt)
					return
				}
			}
			m.Receipts = append(m.Receipts, u.Receipt)
		})
	}
}

func mergeReceipt(dst *Receipt, src Receipt) {
	if src.ReceiptTimestamp != 0 {
		dst.ReceiptTimestamp = src.ReceiptTimestamp
	}
	if src.ReadTimestamp != 0 {
		dst.ReadTimestamp = src.ReadTimestamp
	}
	if src.PlayedTimestamp != 0 {
		dst.PlayedTimestamp = src.PlayedTimestamp
	}
}

// ApplyReactions replaces each sender's reaction on the target message.
// An empty reaction text removes that sender's entry.
func (s *Store) ApplyReactions(updates []ReactionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		d, ok := s.messages[u.Key.ChatID]
		if !ok {
			continue
		}
		d.Apply(u.Key.ID, func(m *Message) {
			kept := make([]Reaction, 0, len(m.Reactions)+1)
			for _, r := range m.Reactions {
				if r.SenderID != u.Reaction.SenderID {
					kept = append(kept, r)
				}
			}
			if u.Reaction.Text != "" {
				kept = append(kept, u.Reaction)
			}
			m.Reactions = kept
		})
	}
}

// detached returns a copy whose slice fields no longer alias the
// store-owned backing arrays, so callers may mutate the result freely.
func (m Message) detached() Message {
	m.Receipts = slices.Clone(m.Receipts)
	m.Reactions = slices.Clone(m.Reactions)
	return m
}

// Messages returns a chat's message list in positional order.
func (s *Store) Messages(chatID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.messages[chatID]
	if !ok {
		return nil
	}
	out := d.All()
	for i := range out {
		out[i] = out[i].detached()
	}
	return out
}

// LoadMessage returns one message by chat and message id.
func (s *Store) LoadMessage(chatID, msgID string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.messages[chatID]
	if !ok {
		return Message{}, false
	}
	m, ok := d.Get(msgID)
	return m.detached(), ok
}

// MostRecentMessage returns the last entry of a chat's list.
func (s *Store) MostRecentMessage(chatID string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.messages[chatID]
	if !ok || d.Len() == 0 {
		return Message{}, false
	}
	all := d.All()
	return all[len(all)-1].detached(), true
}

// FetchMessageReceipts returns the receipts recorded for one message.
func (s *Store) FetchMessageReceipts(chatID, msgID string) ([]Receipt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.messages[chatID]
	if !ok {
		return nil, false
	}
	m, ok := d.Get(msgID)
	if !ok {
		return nil, false
	}
	return slices.Clone(m.Receipts), true
}
