package store

import (
	"go.uber.org/zap"

	"github.com/tfaria/wsync/internal/collection"
)

// maxLabels is the account-level cap on concurrent labels. Creation past
// the cap is rejected, not evicted.
const maxLabels = 20

// EditLabel deletes a label marked deleted, otherwise upserts it while
// the label count is below the cap. At the cap the edit is logged and
// dropped.
func (s *Store) EditLabel(l Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editLabelLocked(l)
}

func (s *Store) editLabelLocked(l Label) {
	if l.Deleted {
		s.labels.Delete(l.ID)
		return
	}
	// The cap limits how many labels exist, so edits to a label already
	// present always go through.
	if _, ok := s.labels.Get(l.ID); !ok && s.labels.Len() >= maxLabels {
		s.log.Error("label capacity exceeded",
			zap.String("label", l.ID), zap.Int("cap", maxLabels))
		return
	}
	s.labels.Upsert(l.ID, l)
}

// SetLabels applies a batch of label upserts and patches. Upserts respect
// the capacity cap; patches for unknown labels are silently dropped.
func (s *Store) SetLabels(b LabelBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range b.Upserts {
		s.editLabelLocked(l)
	}
	for _, p := range b.Patches {
		l, ok := s.labels.Get(p.ID)
		if !ok {
			continue
		}
		if p.Name != nil {
			l.Name = *p.Name
		}
		if p.Color != nil {
			l.Color = *p.Color
		}
		s.labels.Upsert(l.ID, l)
	}
}

// ApplyLabelAssociation adds or removes one label association by its
// composite key.
func (s *Store) ApplyLabelAssociation(u LabelAssociationUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Deleted {
		s.associations.Remove(u.Association)
		return
	}
	s.associations.Upsert(u.Association, collection.Append)
}

// Labels returns all labels in creation order.
func (s *Store) Labels() []Label {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.labels.All()
}

// GetLabel returns one label by id.
func (s *Store) GetLabel(id string) (Label, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.labels.Get(id)
}

// LabelsByName returns labels whose name equals name.
func (s *Store) LabelsByName(name string) []Label {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.labels.FindByField("Name", name)
}

// LabelsByColor returns labels whose color equals color.
func (s *Store) LabelsByColor(color int) []Label {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.labels.FindByField("Color", color)
}

// ChatLabels returns the chat-level associations for one chat.
func (s *Store) ChatLabels(chatID string) []LabelAssociation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []LabelAssociation
	for _, a := range s.associations.All() {
		if a.Type == AssocChat && a.ChatID == chatID {
			out = append(out, a)
		}
	}
	return out
}

// MessageLabels returns the label ids attached to one message.
func (s *Store) MessageLabels(chatID, msgID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, a := range s.associations.All() {
		if a.Type == AssocMessage && a.ChatID == chatID && a.MessageID == msgID {
			out = append(out, a.LabelID)
		}
	}
	return out
}
