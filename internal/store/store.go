package store

import (
	"maps"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tfaria/wsync/internal/collection"
	"github.com/tfaria/wsync/internal/wid"
)

// Store is the in-memory replica. All mutation happens under one write
// lock, one event at a time; queries take the read lock and hand out
// copies, so no caller ever holds a mutable reference into a collection.
type Store struct {
	mu  sync.RWMutex
	log *zap.Logger

	chats        *collection.Sorted[Chat]
	messages     map[string]*collection.Dict[Message]
	contacts     map[string]Contact
	groups       map[string]GroupMetadata
	presences    map[string]map[string]Presence
	connState    map[string]any
	labels       *collection.Repo[Label]
	associations *collection.Dict[LabelAssociation]

	lids *wid.Cache

	pictures  ProfilePictureFetcher
	groupInfo GroupFetcher
	fetches   singleflight.Group

	repoCap  int
	compress bool

	saveMu   sync.Mutex
	savePath string
	saveSum  [32]byte
}

// Options configures a Store. Every field may be left zero: collaborators
// are optional and a nop logger is substituted for a nil one.
type Options struct {
	Logger   *zap.Logger
	Pictures ProfilePictureFetcher
	Groups   GroupFetcher
	LIDs     *wid.Cache
	// RepoCapacity is the soft cap passed to bounded collections.
	// Non-positive means the collection default.
	RepoCapacity int
	// Compress enables zstd compression of the snapshot body.
	Compress bool
}

// New creates an empty store.
func New(opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	lids := opts.LIDs
	if lids == nil {
		lids = wid.NewCache()
	}
	return &Store{
		log:          log,
		chats:        collection.NewSorted(chatID, CompareChats),
		messages:     make(map[string]*collection.Dict[Message]),
		contacts:     make(map[string]Contact),
		groups:       make(map[string]GroupMetadata),
		presences:    make(map[string]map[string]Presence),
		connState:    make(map[string]any),
		labels:       collection.NewRepo[Label](opts.RepoCapacity),
		associations: collection.NewDict(associationKey),
		lids:         lids,
		pictures:     opts.Pictures,
		groupInfo:    opts.Groups,
		repoCap:      opts.RepoCapacity,
		compress:     opts.Compress,
	}
}

func chatID(c Chat) string { return c.ID }

func messageID(m Message) string { return m.ID }

func associationKey(a LabelAssociation) string { return a.Key() }

// ApplyConnection shallow-merges update onto the connection state.
func (s *Store) ApplyConnection(update ConnectionUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range update {
		s.connState[k] = v
	}
}

// ConnectionState returns a copy of the current connection state.
func (s *Store) ConnectionState() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.connState)
}

// ApplyPresence replaces the per-participant presence entries carried by
// the update within its chat.
func (s *Store) ApplyPresence(u PresenceUpdate) {
	if u.ChatID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.presences[u.ChatID]
	if !ok {
		cur = make(map[string]Presence, len(u.Presences))
		s.presences[u.ChatID] = cur
	}
	for id, p := range u.Presences {
		cur[id] = p
	}
}

// PresencesFor returns a copy of the presence map for one chat.
func (s *Store) PresencesFor(chatID string) map[string]Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.presences[chatID])
}

// ResolveID translates an ephemeral identifier through the store's lid
// cache. Non-ephemeral identifiers pass through unchanged.
func (s *Store) ResolveID(id string) string {
	return s.lids.Resolve(id)
}

// Stats counts the replica's contents per collection.
type Stats struct {
	Chats        int `json:"chats"`
	Contacts     int `json:"contacts"`
	Messages     int `json:"messages"`
	Groups       int `json:"groups"`
	Labels       int `json:"labels"`
	Associations int `json:"associations"`
}

// Stats returns current per-collection counts. Messages counts entries
// across all chats.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Chats:        s.chats.Len(),
		Contacts:     len(s.contacts),
		Groups:       len(s.groups),
		Labels:       s.labels.Len(),
		Associations: s.associations.Len(),
	}
	for _, d := range s.messages {
		st.Messages += d.Len()
	}
	return st
}
