package store

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/tfaria/wsync/internal/codec"
	"github.com/tfaria/wsync/internal/collection"
	"github.com/tfaria/wsync/internal/storage"
)

const snapshotVersion = 1

// Body encodings recorded in the envelope.
const (
	codecCBOR     = "cbor"
	codecCBORZstd = "cbor+zstd"
)

// envelope wraps the snapshot body on disk. Sum is the BLAKE3-256 of
// Body exactly as stored, so corruption is detected before decoding.
type envelope struct {
	Version int    `json:"version"`
	SavedAt int64  `json:"savedAt"`
	Codec   string `json:"codec"`
	Sum     []byte `json:"sum"`
	Body    []byte `json:"body"`
}

// Serialize captures the full current content of every collection. All
// top-level fields are populated, so restoring this snapshot replaces
// the whole replica.
func (s *Store) Serialize() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Chats:             s.chats.Snapshot(),
		Contacts:          maps.Clone(s.contacts),
		Messages:          make(map[string][]Message, len(s.messages)),
		GroupMetadata:     maps.Clone(s.groups),
		Presences:         make(map[string]map[string]Presence, len(s.presences)),
		ConnectionState:   maps.Clone(s.connState),
		Labels:            s.labels.All(),
		LabelAssociations: s.associations.Snapshot(),
	}
	for id, d := range s.messages {
		snap.Messages[id] = d.Snapshot()
	}
	for id, m := range s.presences {
		snap.Presences[id] = maps.Clone(m)
	}
	return snap
}

// Restore replaces collections from a snapshot, per top-level field: a
// nil field leaves that collection untouched. Contact and participant
// records re-feed the lid cache.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Chats != nil {
		s.chats.Restore(snap.Chats)
	}
	if snap.Contacts != nil {
		s.contacts = make(map[string]Contact, len(snap.Contacts))
		for id, c := range snap.Contacts {
			s.contacts[id] = c
			if c.LID != "" {
				s.lids.Learn(c.LID, id)
			}
		}
	}
	if snap.Messages != nil {
		s.messages = make(map[string]*collection.Dict[Message], len(snap.Messages))
		for id, list := range snap.Messages {
			d := collection.NewDict(messageID)
			d.Restore(list)
			s.messages[id] = d
		}
	}
	if snap.GroupMetadata != nil {
		s.groups = make(map[string]GroupMetadata, len(snap.GroupMetadata))
		for _, g := range snap.GroupMetadata {
			s.storeGroupLocked(g)
		}
	}
	if snap.Presences != nil {
		s.presences = make(map[string]map[string]Presence, len(snap.Presences))
		for id, m := range snap.Presences {
			s.presences[id] = maps.Clone(m)
		}
	}
	if snap.ConnectionState != nil {
		s.connState = maps.Clone(snap.ConnectionState)
	}
	if snap.Labels != nil {
		s.labels = collection.NewRepo[Label](s.repoCap)
		for _, l := range snap.Labels {
			s.labels.Upsert(l.ID, l)
		}
	}
	if snap.LabelAssociations != nil {
		s.associations.Restore(snap.LabelAssociations)
	}
}

// WriteTo serializes the store and writes the enveloped snapshot through
// the backend. A snapshot whose body is byte-identical to the last one
// written to the same path is skipped; deterministic encoding makes that
// comparison exact.
func (s *Store) WriteTo(backend storage.Backend, path string) error {
	body, err := codec.Marshal(s.Serialize())
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	bodySum := blake3.Sum256(body)
	if s.unchangedSinceLastSave(path, bodySum) {
		s.log.Debug("snapshot unchanged, skipping write", zap.String("path", path))
		return nil
	}

	env := envelope{
		Version: snapshotVersion,
		SavedAt: time.Now().Unix(),
		Codec:   codecCBOR,
		Body:    body,
	}
	if s.compress {
		if packed := codec.Compress(body); len(packed) < len(body) {
			env.Codec = codecCBORZstd
			env.Body = packed
		}
	}
	sum := blake3.Sum256(env.Body)
	env.Sum = sum[:]

	data, err := codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode snapshot envelope: %w", err)
	}
	if err := backend.Write(path, data); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	s.recordSave(path, bodySum)
	return nil
}

func (s *Store) unchangedSinceLastSave(path string, sum [32]byte) bool {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.savePath == path && s.saveSum == sum
}

func (s *Store) recordSave(path string, sum [32]byte) {
	s.saveMu.Lock()
	s.savePath = path
	s.saveSum = sum
	s.saveMu.Unlock()
}

// ReadFrom loads a snapshot through the backend. An absent path is a
// silent no-op; empty, malformed, corrupt or future-versioned content is
// logged at warn level and the in-memory state kept. Reports whether a
// snapshot was restored.
func (s *Store) ReadFrom(backend storage.Backend, path string) bool {
	data, err := backend.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	if err != nil {
		s.log.Warn("snapshot read failed", zap.String("path", path), zap.Error(err))
		return false
	}
	if len(data) == 0 {
		s.log.Warn("snapshot is empty", zap.String("path", path))
		return false
	}

	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		s.log.Warn("snapshot envelope malformed", zap.String("path", path), zap.Error(err))
		return false
	}
	if env.Version != snapshotVersion {
		s.log.Warn("snapshot version unsupported",
			zap.String("path", path), zap.Int("version", env.Version))
		return false
	}
	sum := blake3.Sum256(env.Body)
	if !bytes.Equal(sum[:], env.Sum) {
		s.log.Warn("snapshot checksum mismatch", zap.String("path", path))
		return false
	}

	body := env.Body
	switch env.Codec {
	case codecCBOR:
	case codecCBORZstd:
		body, err = codec.Decompress(env.Body)
		if err != nil {
			s.log.Warn("snapshot decompression failed", zap.String("path", path), zap.Error(err))
			return false
		}
	default:
		s.log.Warn("snapshot codec unknown",
			zap.String("path", path), zap.String("codec", env.Codec))
		return false
	}

	var snap Snapshot
	if err := codec.Unmarshal(body, &snap); err != nil {
		s.log.Warn("snapshot body malformed", zap.String("path", path), zap.Error(err))
		return false
	}
	s.Restore(snap)
	s.log.Info("snapshot restored",
		zap.String("path", path), zap.Time("saved_at", time.Unix(env.SavedAt, 0)))
	return true
}
