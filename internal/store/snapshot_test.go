package store

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tfaria/wsync/internal/codec"
	"github.com/tfaria/wsync/internal/storage"
)

// populatedStore builds a store through the regular event paths so the
// snapshot captures state shaped the way live traffic shapes it.
func populatedStore(t *testing.T) *Store {
	t.Helper()
	groups := &fakeGroups{meta: GroupMetadata{
		ID:      "g@g.us",
		Subject: "Friends",
		Participants: []GroupParticipant{
			{ID: "5511999990000@s.whatsapp.net", LID: "98765432101@lid", IsAdmin: true},
		},
	}}
	s := New(Options{Groups: groups})

	s.UpsertChats([]Chat{
		{ID: "5511999990000@s.whatsapp.net", Name: "Alice", ConversationTimestamp: 200},
		{ID: "g@g.us", IsGroup: true, Pinned: true, ConversationTimestamp: 100},
	})
	s.UpsertMessages(MessageUpsert{Messages: []Message{
		{ID: "m1", ChatID: "g@g.us", SenderID: "5511999990000@s.whatsapp.net", Body: "hi", Timestamp: 90},
		{ID: "m2", ChatID: "g@g.us", Body: "hello", Timestamp: 100, Status: StatusRead},
	}})
	s.ApplyReceipts([]ReceiptUpdate{{
		Key:     MessageKey{ChatID: "g@g.us", ID: "m2"},
		Receipt: Receipt{UserID: "5511999990000@s.whatsapp.net", ReadTimestamp: 110},
	}})
	s.ApplyReactions([]ReactionUpdate{{
		Key:      MessageKey{ChatID: "g@g.us", ID: "m1"},
		Reaction: Reaction{SenderID: "5511999990000@s.whatsapp.net", Text: "👍", Timestamp: 95},
	}})
	s.UpsertContacts([]Contact{{
		ID:       "5511999990000@s.whatsapp.net",
		LID:      "98765432101@lid",
		Name:     "Alice",
		Notify:   "Ali",
		ImageURL: ptr("https://cdn/alice.jpg"),
	}})
	s.FetchGroupMetadata(context.Background(), "g@g.us")
	s.ApplyPresence(PresenceUpdate{
		ChatID: "g@g.us",
		Presences: map[string]Presence{
			"5511999990000@s.whatsapp.net": {State: "available", LastSeen: 1700000000},
		},
	})
	s.ApplyConnection(ConnectionUpdate{"connection": "open", "isOnline": true})
	s.EditLabel(Label{ID: "l1", Name: "Work", Color: 3})
	s.ApplyLabelAssociation(LabelAssociationUpdate{Association: LabelAssociation{
		Type: AssocChat, ChatID: "g@g.us", LabelID: "l1",
	}})
	s.ApplyLabelAssociation(LabelAssociationUpdate{Association: LabelAssociation{
		Type: AssocMessage, ChatID: "g@g.us", MessageID: "m1", LabelID: "l1",
	}})
	return s
}

// equalStores compares the two stores through their query surface.
func equalStores(t *testing.T, got, want *Store) {
	t.Helper()
	if !reflect.DeepEqual(got.Chats(), want.Chats()) {
		t.Errorf("Chats:\n got %+v\nwant %+v", got.Chats(), want.Chats())
	}
	for _, c := range want.Chats() {
		if !reflect.DeepEqual(got.Messages(c.ID), want.Messages(c.ID)) {
			t.Errorf("Messages(%s):\n got %+v\nwant %+v", c.ID, got.Messages(c.ID), want.Messages(c.ID))
		}
	}
	if !reflect.DeepEqual(got.Contacts(), want.Contacts()) {
		t.Errorf("Contacts:\n got %+v\nwant %+v", got.Contacts(), want.Contacts())
	}
	gotGroup, _ := got.GetGroup("g@g.us")
	wantGroup, _ := want.GetGroup("g@g.us")
	if !reflect.DeepEqual(gotGroup, wantGroup) {
		t.Errorf("group:\n got %+v\nwant %+v", gotGroup, wantGroup)
	}
	if !reflect.DeepEqual(got.PresencesFor("g@g.us"), want.PresencesFor("g@g.us")) {
		t.Errorf("presences: got %+v, want %+v", got.PresencesFor("g@g.us"), want.PresencesFor("g@g.us"))
	}
	if !reflect.DeepEqual(got.ConnectionState(), want.ConnectionState()) {
		t.Errorf("connection: got %+v, want %+v", got.ConnectionState(), want.ConnectionState())
	}
	if !reflect.DeepEqual(got.Labels(), want.Labels()) {
		t.Errorf("labels: got %+v, want %+v", got.Labels(), want.Labels())
	}
	if !reflect.DeepEqual(got.ChatLabels("g@g.us"), want.ChatLabels("g@g.us")) {
		t.Errorf("chat labels: got %+v, want %+v", got.ChatLabels("g@g.us"), want.ChatLabels("g@g.us"))
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := populatedStore(t)

	// Through the codec, so pointer fields and nested maps survive the
	// actual wire form rather than just an in-process copy.
	data, err := codec.Marshal(src.Serialize())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var snap Snapshot
	if err := codec.Unmarshal(data, &snap); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	dst := New(Options{})
	dst.Restore(snap)

	equalStores(t, dst, src)

	// The lid cache is rebuilt from restored contact records.
	if got, want := dst.ResolveID("98765432101@lid"), "5511999990000@s.whatsapp.net"; got != want {
		t.Errorf("ResolveID = %q, want %q", got, want)
	}
}

func TestRestorePartialSnapshot(t *testing.T) {
	s := New(Options{})
	s.UpsertChats([]Chat{{ID: "a@s.whatsapp.net"}})
	s.EditLabel(Label{ID: "l1", Name: "Work"})

	// Only the contacts field set: everything else stays.
	s.Restore(Snapshot{Contacts: map[string]Contact{
		"u@s.whatsapp.net": {ID: "u@s.whatsapp.net", Name: "Alice"},
	}})

	if len(s.Chats()) != 1 {
		t.Error("chats were touched by a contacts-only snapshot")
	}
	if len(s.Labels()) != 1 {
		t.Error("labels were touched by a contacts-only snapshot")
	}
	if _, ok := s.GetContact("u@s.whatsapp.net"); !ok {
		t.Error("contacts were not restored")
	}

	// A zero snapshot is a no-op.
	s.Restore(Snapshot{})
	if len(s.Chats()) != 1 || len(s.Labels()) != 1 || len(s.Contacts()) != 1 {
		t.Error("zero snapshot mutated the store")
	}
}

func TestSnapshotFileBackend(t *testing.T) {
	src := populatedStore(t)
	backend := storage.NewFile()
	path := filepath.Join(t.TempDir(), "state", "snapshot.bin")

	if err := src.WriteTo(backend, path); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	dst := New(Options{})
	if !dst.ReadFrom(backend, path) {
		t.Fatal("ReadFrom reported no snapshot")
	}
	equalStores(t, dst, src)
}

func TestSnapshotCompressed(t *testing.T) {
	src := populatedStore(t)
	src.compress = true
	// Enough repetition that the compressed body is the smaller one.
	var bulk []Message
	for i := 0; i < 50; i++ {
		bulk = append(bulk, Message{
			ID:     "bulk-" + string(rune('a'+i%26)) + string(rune('a'+i/26)),
			ChatID: "g@g.us",
			Body:   strings.Repeat("the quick brown fox ", 20),
		})
	}
	src.UpsertMessages(MessageUpsert{Messages: bulk})

	backend := storage.NewFile()
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	if err := src.WriteTo(backend, path); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	data, err := backend.Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		t.Fatalf("Unmarshal envelope: %v", err)
	}
	if env.Codec != codecCBORZstd {
		t.Errorf("codec = %q, want %q", env.Codec, codecCBORZstd)
	}

	dst := New(Options{})
	if !dst.ReadFrom(backend, path) {
		t.Fatal("ReadFrom reported no snapshot")
	}
	equalStores(t, dst, src)
}

// countingBackend records how many writes reach it.
type countingBackend struct {
	blobs  map[string][]byte
	writes int
}

func newCountingBackend() *countingBackend {
	return &countingBackend{blobs: make(map[string][]byte)}
}

func (b *countingBackend) Read(path string) ([]byte, error) {
	data, ok := b.blobs[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func (b *countingBackend) Write(path string, data []byte) error {
	b.blobs[path] = data
	b.writes++
	return nil
}

func (b *countingBackend) Exists(path string) (bool, error) {
	_, ok := b.blobs[path]
	return ok, nil
}

func TestWriteToSkipsUnchanged(t *testing.T) {
	s := populatedStore(t)
	backend := newCountingBackend()

	if err := s.WriteTo(backend, "snap"); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if err := s.WriteTo(backend, "snap"); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if backend.writes != 1 {
		t.Errorf("writes = %d, want 1 (unchanged store rewrote its snapshot)", backend.writes)
	}

	// A different path is a different target even with identical content.
	if err := s.WriteTo(backend, "other"); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if backend.writes != 2 {
		t.Errorf("writes = %d, want 2", backend.writes)
	}

	s.UpsertChats([]Chat{{ID: "new@s.whatsapp.net", ConversationTimestamp: 300}})
	if err := s.WriteTo(backend, "other"); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if backend.writes != 3 {
		t.Errorf("writes = %d, want 3 (mutation did not trigger a write)", backend.writes)
	}
}

func TestReadFromMissing(t *testing.T) {
	s := New(Options{})
	path := filepath.Join(t.TempDir(), "never-written.bin")
	if s.ReadFrom(storage.NewFile(), path) {
		t.Error("ReadFrom reported a snapshot for a missing path")
	}
}

func TestReadFromEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	s := New(Options{})
	if s.ReadFrom(storage.NewFile(), path) {
		t.Error("ReadFrom restored from an empty file")
	}
}

func TestReadFromCorruptKeepsState(t *testing.T) {
	src := populatedStore(t)
	backend := storage.NewFile()
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	if err := src.WriteTo(backend, path); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-1] ^= 0xff
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	s := New(Options{})
	s.UpsertChats([]Chat{{ID: "existing@s.whatsapp.net"}})
	if s.ReadFrom(backend, path) {
		t.Error("ReadFrom restored from a corrupt snapshot")
	}
	if _, ok := s.GetChat("existing@s.whatsapp.net"); !ok {
		t.Error("corrupt snapshot load destroyed in-memory state")
	}
}

func TestReadFromChecksumMismatch(t *testing.T) {
	body, err := codec.Marshal(Snapshot{})
	if err != nil {
		t.Fatal(err)
	}
	env := envelope{
		Version: snapshotVersion,
		Codec:   codecCBOR,
		Sum:     []byte{0xde, 0xad, 0xbe, 0xef},
		Body:    body,
	}
	data, err := codec.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}

	backend := storage.NewFile()
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	if err := backend.Write(path, data); err != nil {
		t.Fatal(err)
	}
	if New(Options{}).ReadFrom(backend, path) {
		t.Error("ReadFrom accepted a snapshot with a bad checksum")
	}
}

func TestReadFromFutureVersion(t *testing.T) {
	src := populatedStore(t)
	backend := storage.NewFile()
	path := filepath.Join(t.TempDir(), "snapshot.bin")
	if err := src.WriteTo(backend, path); err != nil {
		t.Fatal(err)
	}

	// Rewrap the stored envelope with a version this build does not know.
	data, err := backend.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		t.Fatal(err)
	}
	env.Version = snapshotVersion + 1
	data, err = codec.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	if err := backend.Write(path, data); err != nil {
		t.Fatal(err)
	}

	if New(Options{}).ReadFrom(backend, path) {
		t.Error("ReadFrom accepted a future snapshot version")
	}
}

func TestSnapshotSQLiteBackend(t *testing.T) {
	backend, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "wsync.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { backend.Close() })

	src := populatedStore(t)
	if err := src.WriteTo(backend, "snapshot"); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	dst := New(Options{})
	if !dst.ReadFrom(backend, "snapshot") {
		t.Fatal("ReadFrom reported no snapshot")
	}
	equalStores(t, dst, src)
}
