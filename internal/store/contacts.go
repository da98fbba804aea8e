package store

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"maps"
	"strings"

	"go.uber.org/zap"

	"github.com/tfaria/wsync/internal/wid"
)

// contactHashSalt is the wire convention for legacy short-form contact
// identifiers: md5 of the normalized user plus this salt, base64, first
// three characters.
const contactHashSalt = "WA_ADD_NOTIF"

// UpsertContacts additively merges contact records: only non-zero fields
// of the incoming record overwrite the stored one. Records carrying a
// lid feed the resolution cache.
func (s *Store) UpsertContacts(contacts []Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range contacts {
		if c.ID == "" {
			continue
		}
		s.mergeContactLocked(c)
	}
}

func (s *Store) mergeContactLocked(c Contact) {
	cur, ok := s.contacts[c.ID]
	if !ok {
		cur = Contact{ID: c.ID}
	}
	if c.LID != "" {
		cur.LID = c.LID
		s.lids.Learn(c.LID, c.ID)
	}
	if c.Name != "" {
		cur.Name = c.Name
	}
	if c.Notify != "" {
		cur.Notify = c.Notify
	}
	if c.ImageURL != nil {
		cur.ImageURL = c.ImageURL
	}
	s.contacts[c.ID] = cur
}

// UpdateContacts applies partial contact updates. An unknown target id is
// retried as a legacy short-form identifier via the contact hash table;
// updates that still match nothing are dropped.
func (s *Store) UpdateContacts(patches []ContactPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range patches {
		s.updateContactLocked(p)
	}
}

func (s *Store) updateContactLocked(p ContactPatch) {
	id := p.ID
	if _, ok := s.contacts[id]; !ok {
		full, ok := s.matchShortFormLocked(id)
		if !ok {
			s.log.Debug("contact update for unknown contact", zap.String("contact", p.ID))
			return
		}
		id = full
	}

	cur := s.contacts[id]
	if p.LID != nil && *p.LID != "" {
		cur.LID = *p.LID
		s.lids.Learn(*p.LID, id)
	}
	if p.Name != nil {
		cur.Name = *p.Name
	}
	if p.Notify != nil {
		cur.Notify = *p.Notify
	}
	if p.ImageURL != nil {
		switch *p.ImageURL {
		case ImageChanged:
			// The picture changed server-side. Invalidate and refetch
			// through the collaborator; the result lands in the cache
			// whenever it completes.
			cur.ImageURL = nil
			if s.pictures != nil {
				go s.refreshImage(context.Background(), id)
			}
		case ImageRemoved:
			cur.ImageURL = nil
		default:
			cur.ImageURL = p.ImageURL
		}
	}
	s.contacts[id] = cur
}

// matchShortFormLocked hashes every known contact with an "@" identifier
// and looks the short id up among them. Linear in the address book per
// call; acceptable for notification-sized batches.
func (s *Store) matchShortFormLocked(short string) (string, bool) {
	for id := range s.contacts {
		if !strings.Contains(id, "@") {
			continue
		}
		if contactHash(id) == short {
			return id, true
		}
	}
	return "", false
}

func contactHash(id string) string {
	user := id
	if j, ok := wid.Decode(id); ok {
		user = j.User
	}
	sum := md5.Sum([]byte(user + contactHashSalt))
	return base64.StdEncoding.EncodeToString(sum[:])[:3]
}

// GetContact returns one contact by id.
func (s *Store) GetContact(id string) (Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	return c, ok
}

// Contacts returns a copy of the whole address book.
func (s *Store) Contacts() map[string]Contact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.contacts)
}
