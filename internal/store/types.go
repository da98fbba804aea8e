// Package store maintains the local replica of remote conversational
// state. It owns one collection per entity kind, applies the per-event
// merge policy, answers queries with copies, and snapshots the whole
// replica to durable storage.
package store

import "strings"

// Message delivery statuses, ordered so later stages compare greater.
const (
	StatusError = iota
	StatusPending
	StatusServerAck
	StatusDeliveryAck
	StatusRead
	StatusPlayed
)

// Chat is one conversation thread.
type Chat struct {
	ID                    string `json:"id"`
	Name                  string `json:"name,omitempty"`
	IsGroup               bool   `json:"isGroup,omitempty"`
	Pinned                bool   `json:"pinned,omitempty"`
	Archived              bool   `json:"archived,omitempty"`
	ConversationTimestamp int64  `json:"conversationTimestamp,omitempty"`
	UnreadCount           int    `json:"unreadCount,omitempty"`
}

// CompareChats orders chats the way clients list them: pinned first,
// unarchived before archived, most recent first. Ties break on reverse
// lexicographic id so the order is total.
func CompareChats(a, b Chat) int {
	if a.Pinned != b.Pinned {
		if a.Pinned {
			return -1
		}
		return 1
	}
	if a.Archived != b.Archived {
		if a.Archived {
			return 1
		}
		return -1
	}
	if a.ConversationTimestamp != b.ConversationTimestamp {
		if a.ConversationTimestamp > b.ConversationTimestamp {
			return -1
		}
		return 1
	}
	return strings.Compare(b.ID, a.ID)
}

// Receipt records one participant's delivery progress for a message.
type Receipt struct {
	UserID           string `json:"userId"`
	ReceiptTimestamp int64  `json:"receiptTimestamp,omitempty"`
	ReadTimestamp    int64  `json:"readTimestamp,omitempty"`
	PlayedTimestamp  int64  `json:"playedTimestamp,omitempty"`
}

// Reaction is one sender's emoji reaction to a message. An empty Text
// removes that sender's reaction.
type Reaction struct {
	SenderID  string `json:"senderId"`
	Text      string `json:"text,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Message is one entry in a chat's message list. The ID is unique only
// within its chat.
type Message struct {
	ID         string     `json:"id"`
	ChatID     string     `json:"chatId"`
	SenderID   string     `json:"senderId,omitempty"`
	SenderName string     `json:"senderName,omitempty"`
	FromMe     bool       `json:"fromMe,omitempty"`
	Type       string     `json:"type,omitempty"`
	Body       string     `json:"body,omitempty"`
	Timestamp  int64      `json:"timestamp,omitempty"`
	Status     int        `json:"status,omitempty"`
	Receipts   []Receipt  `json:"receipts,omitempty"`
	Reactions  []Reaction `json:"reactions,omitempty"`
}

// Contact is one address-book entry. ImageURL distinguishes never
// fetched (nil) from fetched and absent (pointer to empty string).
type Contact struct {
	ID       string  `json:"id"`
	LID      string  `json:"lid,omitempty"`
	Name     string  `json:"name,omitempty"`
	Notify   string  `json:"notify,omitempty"`
	ImageURL *string `json:"imgUrl,omitempty"`
}

// GroupParticipant is one member of a group.
type GroupParticipant struct {
	ID           string `json:"id"`
	LID          string `json:"lid,omitempty"`
	IsAdmin      bool   `json:"isAdmin,omitempty"`
	IsSuperAdmin bool   `json:"isSuperAdmin,omitempty"`
}

// GroupMetadata describes a group chat.
type GroupMetadata struct {
	ID           string             `json:"id"`
	Subject      string             `json:"subject,omitempty"`
	Owner        string             `json:"owner,omitempty"`
	Created      int64              `json:"created,omitempty"`
	Announce     bool               `json:"announce,omitempty"`
	Participants []GroupParticipant `json:"participants,omitempty"`
}

// Label is a user-defined tag. The account holds at most 20 concurrent
// labels; creation past the cap is rejected by the engine.
type Label struct {
	ID         string `json:"id"`
	Name       string `json:"name,omitempty"`
	Color      int    `json:"color,omitempty"`
	Predefined bool   `json:"predefined,omitempty"`
	Deleted    bool   `json:"deleted,omitempty"`
}

// Label association targets.
const (
	AssocChat    = "chat"
	AssocMessage = "message"
)

// LabelAssociation joins a label to a chat or to a chat+message pair.
type LabelAssociation struct {
	Type      string `json:"type"`
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId,omitempty"`
	LabelID   string `json:"labelId"`
}

// Key returns the composite identity under which duplicate associations
// collapse.
func (a LabelAssociation) Key() string {
	return a.Type + "|" + a.ChatID + "|" + a.MessageID + "|" + a.LabelID
}

// Presence is one participant's last known activity in a chat.
type Presence struct {
	State    string `json:"lastKnownPresence,omitempty"`
	LastSeen int64  `json:"lastSeen,omitempty"`
}

// Snapshot is the aggregate serialized form of every collection. On
// restore, a nil top-level field leaves the corresponding collection
// untouched; Serialize always populates all of them.
type Snapshot struct {
	Chats             []Chat                         `json:"chats"`
	Contacts          map[string]Contact             `json:"contacts"`
	Messages          map[string][]Message           `json:"messages"`
	GroupMetadata     map[string]GroupMetadata       `json:"groupMetadata"`
	Presences         map[string]map[string]Presence `json:"presences"`
	ConnectionState   map[string]any                 `json:"connectionState"`
	Labels            []Label                        `json:"labels"`
	LabelAssociations []LabelAssociation             `json:"labelAssociations"`
}
