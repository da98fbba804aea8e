package store

// Event kinds published by the protocol adapter under the wa. namespace.
// The engine subscribes to the whole namespace and dispatches on the
// payload type, so each kind carries exactly one payload type below.
const (
	KindConnection       = "wa.connection"
	KindHistory          = "wa.history"
	KindContactsUpsert   = "wa.contacts.upsert"
	KindContactsUpdate   = "wa.contacts.update"
	KindChatsUpsert      = "wa.chats.upsert"
	KindChatsUpdate      = "wa.chats.update"
	KindChatsDelete      = "wa.chats.delete"
	KindMessagesUpsert   = "wa.messages.upsert"
	KindMessagesUpdate   = "wa.messages.update"
	KindMessagesDelete   = "wa.messages.delete"
	KindMessageReaction  = "wa.messages.reaction"
	KindReceiptsUpdate   = "wa.receipts.update"
	KindGroupsUpdate     = "wa.groups.update"
	KindParticipants     = "wa.groups.participants"
	KindLabelsEdit       = "wa.labels.edit"
	KindLabelsSet        = "wa.labels.set"
	KindLabelAssociation = "wa.labels.association"
	KindPresenceUpdate   = "wa.presence.update"
)

// Kinds the engine publishes after applying events, for observers such
// as the daemon's status logging.
const (
	KindSyncHistory  = "sync.history"
	KindSyncNewChats = "sync.chats.new"
	KindSyncMessage  = "sync.message"
)

// ConnectionUpdate shallow-merges onto the connection state.
type ConnectionUpdate map[string]any

// History sync sub-types as they appear on the wire.
const (
	SyncInitialBootstrap = "initial_bootstrap"
	SyncInitialStatus    = "initial_status_v3"
	SyncFull             = "full"
	SyncRecent           = "recent"
	SyncPushName         = "push_name"
	SyncNonBlockingData  = "non_blocking_data"
	SyncOnDemand         = "on_demand"
)

// HistorySync is an authoritative bulk payload. IsLatest marks it as the
// complete state, which switches chat and contact handling from merge to
// replace.
type HistorySync struct {
	Chats    []Chat
	Contacts []Contact
	Messages []Message
	SyncType string
	IsLatest bool
}

// HistoryResult summarizes what a history sync changed.
type HistoryResult struct {
	Ignored  bool
	NewChats int
	Contacts int
	Messages int
}

// Message upsert modes.
const (
	UpsertAppend = "append"
	UpsertNotify = "notify"
)

// MessageUpsert carries live or replayed messages. Notify mode
// synthesizes a chat for messages arriving in a chat the store has never
// seen.
type MessageUpsert struct {
	Messages []Message
	Mode     string
}

// MessageKey addresses one message within one chat.
type MessageKey struct {
	ChatID string
	ID     string
	FromMe bool
}

// MessageDelete removes messages by key, or a chat's whole list when All
// is set.
type MessageDelete struct {
	ChatID string
	Keys   []MessageKey
	All    bool
}

// ReceiptUpdate carries one participant's delivery progress for one
// message.
type ReceiptUpdate struct {
	Key     MessageKey
	Receipt Receipt
}

// ReactionUpdate carries one sender's reaction to one message.
type ReactionUpdate struct {
	Key      MessageKey
	Reaction Reaction
}

// ChatPatch is a partial chat update. Nil fields are left untouched. A
// positive UnreadCount is added to the stored count; zero or negative
// replaces it.
type ChatPatch struct {
	ID                    string
	Name                  *string
	Pinned                *bool
	Archived              *bool
	ConversationTimestamp *int64
	UnreadCount           *int
}

// ImageURL sentinels carried by contact patches.
const (
	ImageChanged = "changed"
	ImageRemoved = "removed"
)

// ContactPatch is a partial contact update. ImageURL may carry a literal
// URL or one of the sentinels above.
type ContactPatch struct {
	ID       string
	LID      *string
	Name     *string
	Notify   *string
	ImageURL *string
}

// MessagePatch is a partial message update. A Status at or below the
// stored one is dropped so delivery state never regresses.
type MessagePatch struct {
	Key    MessageKey
	Status *int
	Body   *string
}

// GroupPatch is a partial group metadata update.
type GroupPatch struct {
	ID       string
	Subject  *string
	Owner    *string
	Announce *bool
}

// Participant update actions.
const (
	ParticipantAdd     = "add"
	ParticipantRemove  = "remove"
	ParticipantPromote = "promote"
	ParticipantDemote  = "demote"
)

// ParticipantsUpdate mutates a group's member list.
type ParticipantsUpdate struct {
	ID           string
	Action       string
	Participants []GroupParticipant
}

// LabelPatch is a partial label update, silently dropped when the label
// is unknown.
type LabelPatch struct {
	ID    string
	Name  *string
	Color *int
}

// LabelBatch applies label upserts and patches in one event.
type LabelBatch struct {
	Upserts []Label
	Patches []LabelPatch
}

// LabelAssociationUpdate adds or removes one association.
type LabelAssociationUpdate struct {
	Association LabelAssociation
	Deleted     bool
}

// PresenceUpdate replaces per-participant presence entries within one
// chat.
type PresenceUpdate struct {
	ChatID    string
	Presences map[string]Presence
}
