package wa

import (
	"strings"

	"github.com/tfaria/wsync/internal/store"
	"github.com/tfaria/wsync/internal/wid"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// normalizeJID renders a whatsmeow JID in the canonical form the store
// keys on, with device and agent suffixes stripped.
func normalizeJID(j types.JID) string {
	return wid.Normalize(j.ToNonAD().String())
}

// normalizeRaw normalizes a JID that arrives as a raw string, as history
// sync protos carry them.
func normalizeRaw(s string) string {
	return wid.Normalize(s)
}

func isGroupID(id string) bool {
	return strings.HasSuffix(id, "@"+wid.GroupServer)
}

// ParseLiveMessage converts a live whatsmeow message event into a store
// message. Timestamps are unix seconds. An incoming message has by
// definition reached this device; one echoed from another own device has
// only provably reached the server.
func ParseLiveMessage(evt *events.Message) store.Message {
	status := store.StatusDeliveryAck
	if evt.Info.IsFromMe {
		status = store.StatusServerAck
	}
	return store.Message{
		ID:         evt.Info.ID,
		ChatID:     normalizeJID(evt.Info.Chat),
		SenderID:   normalizeJID(evt.Info.Sender),
		SenderName: evt.Info.PushName,
		FromMe:     evt.Info.IsFromMe,
		Type:       detectMessageType(evt.Message),
		Body:       extractTextBody(evt.Message),
		Timestamp:  evt.Info.Timestamp.Unix(),
		Status:     status,
	}
}

func syncTypeString(t waHistorySync.HistorySync_HistorySyncType) string {
	switch t {
	case waHistorySync.HistorySync_INITIAL_BOOTSTRAP:
		return store.SyncInitialBootstrap
	case waHistorySync.HistorySync_INITIAL_STATUS_V3:
		return store.SyncInitialStatus
	case waHistorySync.HistorySync_FULL:
		return store.SyncFull
	case waHistorySync.HistorySync_RECENT:
		return store.SyncRecent
	case waHistorySync.HistorySync_PUSH_NAME:
		return store.SyncPushName
	case waHistorySync.HistorySync_NON_BLOCKING_DATA:
		return store.SyncNonBlockingData
	case waHistorySync.HistorySync_ON_DEMAND:
		return store.SyncOnDemand
	default:
		return store.SyncRecent
	}
}

// ParseHistory flattens a history sync proto into chats, contacts and
// messages. Conversation names and per-message push names both feed the
// contact list; the store merges them additively unless the sync is the
// latest snapshot.
func ParseHistory(data *waHistorySync.HistorySync) store.HistorySync {
	syncType := data.GetSyncType()
	res := store.HistorySync{
		SyncType: syncTypeString(syncType),
		IsLatest: syncType == waHistorySync.HistorySync_INITIAL_BOOTSTRAP,
	}

	for _, conv := range data.GetConversations() {
		chatID := normalizeRaw(conv.GetID())
		if chatID == "" {
			continue
		}
		res.Chats = append(res.Chats, store.Chat{
			ID:                    chatID,
			Name:                  conv.GetName(),
			IsGroup:               isGroupID(chatID),
			Pinned:                conv.GetPinned() != 0,
			Archived:              conv.GetArchived(),
			ConversationTimestamp: int64(conv.GetConversationTimestamp()),
			UnreadCount:           int(conv.GetUnreadCount()),
		})
		if name := conv.GetName(); name != "" && !isGroupID(chatID) {
			res.Contacts = append(res.Contacts, store.Contact{ID: chatID, Name: name})
		}
		for _, hm := range conv.GetMessages() {
			msg, ok := parseWebMessage(chatID, hm.GetMessage())
			if !ok {
				continue
			}
			res.Messages = append(res.Messages, msg)
			if msg.SenderName != "" && !msg.FromMe {
				res.Contacts = append(res.Contacts, store.Contact{ID: msg.SenderID, Notify: msg.SenderName})
			}
		}
	}

	for _, pn := range data.GetPushnames() {
		id := normalizeRaw(pn.GetID())
		if id == "" || pn.GetPushname() == "" {
			continue
		}
		res.Contacts = append(res.Contacts, store.Contact{ID: id, Notify: pn.GetPushname()})
	}

	return res
}

// parseWebMessage converts one history sync message. Messages without a
// key or content envelope are skipped.
func parseWebMessage(chatID string, wmsg *waWeb.WebMessageInfo) (store.Message, bool) {
	if wmsg == nil || wmsg.GetKey() == nil {
		return store.Message{}, false
	}
	key := wmsg.GetKey()
	if key.GetID() == "" {
		return store.Message{}, false
	}

	sender := normalizeRaw(key.GetParticipant())
	if sender == "" {
		sender = normalizeRaw(wmsg.GetParticipant())
	}
	if sender == "" && !key.GetFromMe() {
		sender = chatID
	}

	return store.Message{
		ID:         key.GetID(),
		ChatID:     chatID,
		SenderID:   sender,
		SenderName: wmsg.GetPushName(),
		FromMe:     key.GetFromMe(),
		Type:       detectMessageType(wmsg.GetMessage()),
		Body:       extractTextBody(wmsg.GetMessage()),
		Timestamp:  int64(wmsg.GetMessageTimestamp()),
		Status:     int(wmsg.GetStatus()),
	}, true
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	case msg.GetReactionMessage() != nil:
		return "reaction"
	case msg.GetProtocolMessage() != nil:
		return "protocol"
	default:
		return "unknown"
	}
}
