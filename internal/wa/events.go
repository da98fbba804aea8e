package wa

import (
	"context"
	"time"

	"github.com/tfaria/wsync/internal/bus"
	"github.com/tfaria/wsync/internal/status"
	"github.com/tfaria/wsync/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// EventHandler translates whatsmeow events into store payloads, drives
// the state machine, and publishes on the bus. It does NOT call the
// sync engine directly; the engine subscribes to the bus independently.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	adapter *Adapter
	logger  *zap.Logger
}

// NewEventHandler creates a new event handler. The adapter may be nil,
// in which case lid resolution falls back to plain normalization.
func NewEventHandler(b *bus.Bus, machine *status.Machine, adapter *Adapter, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		bus:     b,
		machine: machine,
		adapter: adapter,
		logger:  logger,
	}
}

func (h *EventHandler) publish(kind string, payload any) {
	h.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// resolveJID maps a lid identifier back to its phone number form when
// the device store knows the mapping, then normalizes.
func (h *EventHandler) resolveJID(j types.JID) string {
	if h.adapter != nil {
		j = h.adapter.ResolveLID(context.Background(), j)
	}
	return normalizeJID(j)
}

// Handle is the main whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		h.handleConnected()
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		_ = h.machine.Transition(status.Reconnecting)
		h.publish(store.KindConnection, store.ConnectionUpdate{"connection": "close"})
	case *events.LoggedOut:
		h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		_ = h.machine.Transition(status.AuthRequired)
		h.publish(store.KindConnection, store.ConnectionUpdate{
			"connection": "close",
			"loggedOut":  true,
			"reason":     evt.Reason.String(),
		})
	case *events.OfflineSyncCompleted:
		h.logger.Info("offline sync completed", zap.Int("count", evt.Count))
		if h.machine.Is(status.Syncing) {
			_ = h.machine.Transition(status.Live)
		}
		h.publish(store.KindConnection, store.ConnectionUpdate{"receivedPendingNotifications": true})
	case *events.KeepAliveTimeout:
		h.logger.Warn("keepalive gap on stream",
			zap.Int("error_count", evt.ErrorCount),
			zap.Time("last_success", evt.LastSuccess))
		if h.machine.Is(status.Syncing, status.Live) {
			_ = h.machine.Transition(status.Degraded)
		}
	case *events.KeepAliveRestored:
		h.logger.Info("keepalive restored")
		if h.machine.Is(status.Degraded) {
			_ = h.machine.Transition(status.Live)
		}
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.Message:
		h.handleMessage(evt)
	case *events.Receipt:
		h.handleReceipt(evt)
	case *events.PushName:
		if evt.NewPushName != "" {
			h.publish(store.KindContactsUpdate, []store.ContactPatch{
				{ID: h.resolveJID(evt.JID), Notify: &evt.NewPushName},
			})
		}
	case *events.BusinessName:
		if evt.NewBusinessName != "" {
			h.publish(store.KindContactsUpdate, []store.ContactPatch{
				{ID: h.resolveJID(evt.JID), Name: &evt.NewBusinessName},
			})
		}
	case *events.Contact:
		if name := evt.Action.GetFullName(); name != "" {
			h.publish(store.KindContactsUpdate, []store.ContactPatch{
				{ID: h.resolveJID(evt.JID), Name: &name},
			})
		}
	case *events.Picture:
		sentinel := store.ImageChanged
		if evt.Remove {
			sentinel = store.ImageRemoved
		}
		h.publish(store.KindContactsUpdate, []store.ContactPatch{
			{ID: h.resolveJID(evt.JID), ImageURL: &sentinel},
		})
	case *events.Pin:
		pinned := evt.Action.GetPinned()
		h.publish(store.KindChatsUpdate, []store.ChatPatch{
			{ID: h.resolveJID(evt.JID), Pinned: &pinned},
		})
	case *events.Archive:
		archived := evt.Action.GetArchived()
		h.publish(store.KindChatsUpdate, []store.ChatPatch{
			{ID: h.resolveJID(evt.JID), Archived: &archived},
		})
	case *events.MarkChatAsRead:
		// Marked unread carries no count; -1 means "unread, count
		// unknown" downstream.
		unread := -1
		if evt.Action.GetRead() {
			unread = 0
		}
		h.publish(store.KindChatsUpdate, []store.ChatPatch{
			{ID: h.resolveJID(evt.JID), UnreadCount: &unread},
		})
	case *events.DeleteChat:
		h.publish(store.KindChatsDelete, []string{h.resolveJID(evt.JID)})
	case *events.ClearChat:
		h.publish(store.KindMessagesDelete, store.MessageDelete{
			ChatID: h.resolveJID(evt.JID),
			All:    true,
		})
	case *events.DeleteForMe:
		h.publish(store.KindMessagesDelete, store.MessageDelete{
			Keys: []store.MessageKey{{
				ChatID: h.resolveJID(evt.ChatJID),
				ID:     evt.MessageID,
				FromMe: evt.IsFromMe,
			}},
		})
	case *events.GroupInfo:
		h.handleGroupInfo(evt)
	case *events.Presence:
		h.handlePresence(evt)
	case *events.ChatPresence:
		h.handleChatPresence(evt)
	case *events.LabelEdit:
		h.publish(store.KindLabelsEdit, store.Label{
			ID:         evt.LabelID,
			Name:       evt.Action.GetName(),
			Color:      int(evt.Action.GetColor()),
			Predefined: evt.Action.GetPredefinedID() != 0,
			Deleted:    evt.Action.GetDeleted(),
		})
	case *events.LabelAssociationChat:
		h.publish(store.KindLabelAssociation, store.LabelAssociationUpdate{
			Association: store.LabelAssociation{
				Type:    store.AssocChat,
				ChatID:  h.resolveJID(evt.JID),
				LabelID: evt.LabelID,
			},
			Deleted: !evt.Action.GetLabeled(),
		})
	case *events.LabelAssociationMessage:
		h.publish(store.KindLabelAssociation, store.LabelAssociationUpdate{
			Association: store.LabelAssociation{
				Type:      store.AssocMessage,
				ChatID:    h.resolveJID(evt.JID),
				MessageID: evt.MessageID,
				LabelID:   evt.LabelID,
			},
			Deleted: !evt.Action.GetLabeled(),
		})
	}
}

func (h *EventHandler) handleConnected() {
	h.logger.Info("WhatsApp connected")
	if h.machine.Is(status.AuthRequired, status.Reconnecting) {
		_ = h.machine.Transition(status.Connecting)
	}
	_ = h.machine.Transition(status.Syncing)
	h.publish(store.KindConnection, store.ConnectionUpdate{"connection": "open"})

	// Seed contacts from the device store so names resolve before the
	// first history sync lands.
	if h.adapter != nil {
		if contacts := h.adapter.Contacts(context.Background()); len(contacts) > 0 {
			h.publish(store.KindContactsUpsert, contacts)
		}
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	// A live message means the backlog is drained even if no offline
	// sync marker arrived.
	if h.machine.Is(status.Syncing) {
		_ = h.machine.Transition(status.Live)
	}

	chatID := h.resolveJID(evt.Info.Chat)
	senderID := h.resolveJID(evt.Info.Sender)

	if rm := evt.Message.GetReactionMessage(); rm != nil {
		h.publish(store.KindMessageReaction, []store.ReactionUpdate{{
			Key: store.MessageKey{
				ChatID: chatID,
				ID:     rm.GetKey().GetID(),
				FromMe: rm.GetKey().GetFromMe(),
			},
			Reaction: store.Reaction{
				SenderID:  senderID,
				Text:      rm.GetText(),
				Timestamp: rm.GetSenderTimestampMS() / 1000,
			},
		}})
		return
	}

	if pm := evt.Message.GetProtocolMessage(); pm != nil {
		switch pm.GetType() {
		case waE2E.ProtocolMessage_REVOKE:
			h.publish(store.KindMessagesDelete, store.MessageDelete{
				Keys: []store.MessageKey{{
					ChatID: chatID,
					ID:     pm.GetKey().GetID(),
					FromMe: pm.GetKey().GetFromMe(),
				}},
			})
		case waE2E.ProtocolMessage_MESSAGE_EDIT:
			body := extractTextBody(pm.GetEditedMessage())
			h.publish(store.KindMessagesUpdate, []store.MessagePatch{{
				Key: store.MessageKey{
					ChatID: chatID,
					ID:     pm.GetKey().GetID(),
					FromMe: pm.GetKey().GetFromMe(),
				},
				Body: &body,
			}})
		}
		return
	}

	msg := ParseLiveMessage(evt)
	msg.ChatID = chatID
	msg.SenderID = senderID
	h.publish(store.KindMessagesUpsert, store.MessageUpsert{
		Messages: []store.Message{msg},
		Mode:     store.UpsertNotify,
	})
}

func (h *EventHandler) handleReceipt(evt *events.Receipt) {
	if len(evt.MessageIDs) == 0 {
		return
	}
	chatID := h.resolveJID(evt.Chat)
	userID := h.resolveJID(evt.Sender)
	ts := evt.Timestamp.Unix()

	rec := store.Receipt{UserID: userID}
	var msgStatus int
	switch evt.Type {
	case types.ReceiptTypeDelivered:
		rec.ReceiptTimestamp = ts
		msgStatus = store.StatusDeliveryAck
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
		rec.ReadTimestamp = ts
		msgStatus = store.StatusRead
	case types.ReceiptTypePlayed:
		rec.PlayedTimestamp = ts
		msgStatus = store.StatusPlayed
	default:
		return
	}

	receipts := make([]store.ReceiptUpdate, 0, len(evt.MessageIDs))
	for _, id := range evt.MessageIDs {
		receipts = append(receipts, store.ReceiptUpdate{
			Key:     store.MessageKey{ChatID: chatID, ID: id},
			Receipt: rec,
		})
	}
	h.publish(store.KindReceiptsUpdate, receipts)

	// In a direct chat the peer's receipt is the message's delivery
	// state. In a group the aggregate would be the slowest member, so
	// per-user receipts are all that is recorded.
	if evt.Chat.Server == types.GroupServer {
		return
	}
	patches := make([]store.MessagePatch, 0, len(evt.MessageIDs))
	for _, id := range evt.MessageIDs {
		s := msgStatus
		patches = append(patches, store.MessagePatch{
			Key:    store.MessageKey{ChatID: chatID, ID: id},
			Status: &s,
		})
	}
	h.publish(store.KindMessagesUpdate, patches)
}

func (h *EventHandler) handleGroupInfo(evt *events.GroupInfo) {
	id := h.resolveJID(evt.JID)

	patch := store.GroupPatch{ID: id}
	changed := false
	if evt.Name != nil {
		patch.Subject = &evt.Name.Name
		changed = true
	}
	if evt.Announce != nil {
		patch.Announce = &evt.Announce.IsAnnounce
		changed = true
	}
	if changed {
		h.publish(store.KindGroupsUpdate, []store.GroupPatch{patch})
	}
	if evt.Name != nil {
		h.publish(store.KindChatsUpdate, []store.ChatPatch{
			{ID: id, Name: &evt.Name.Name},
		})
	}

	for _, change := range []struct {
		action string
		jids   []types.JID
	}{
		{store.ParticipantAdd, evt.Join},
		{store.ParticipantRemove, evt.Leave},
		{store.ParticipantPromote, evt.Promote},
		{store.ParticipantDemote, evt.Demote},
	} {
		if len(change.jids) == 0 {
			continue
		}
		parts := make([]store.GroupParticipant, 0, len(change.jids))
		for _, j := range change.jids {
			p := store.GroupParticipant{ID: h.resolveJID(j)}
			if change.action == store.ParticipantPromote {
				p.IsAdmin = true
			}
			parts = append(parts, p)
		}
		h.publish(store.KindParticipants, store.ParticipantsUpdate{
			ID:           id,
			Action:       change.action,
			Participants: parts,
		})
	}
}

func (h *EventHandler) handlePresence(evt *events.Presence) {
	id := h.resolveJID(evt.From)
	p := store.Presence{State: "available"}
	if evt.Unavailable {
		p.State = "unavailable"
	}
	if !evt.LastSeen.IsZero() {
		p.LastSeen = evt.LastSeen.Unix()
	}
	h.publish(store.KindPresenceUpdate, store.PresenceUpdate{
		ChatID:    id,
		Presences: map[string]store.Presence{id: p},
	})
}

func (h *EventHandler) handleChatPresence(evt *events.ChatPresence) {
	state := "paused"
	if evt.State == types.ChatPresenceComposing {
		state = "composing"
		if evt.Media == types.ChatPresenceMediaAudio {
			state = "recording"
		}
	}
	sender := h.resolveJID(evt.Sender)
	h.publish(store.KindPresenceUpdate, store.PresenceUpdate{
		ChatID:    h.resolveJID(evt.Chat),
		Presences: map[string]store.Presence{sender: {State: state}},
	})
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	if evt.Data == nil {
		return
	}
	res := ParseHistory(evt.Data)
	if h.adapter != nil {
		for i := range res.Chats {
			res.Chats[i].ID = h.resolveRaw(res.Chats[i].ID)
		}
		for i := range res.Contacts {
			res.Contacts[i].ID = h.resolveRaw(res.Contacts[i].ID)
		}
		for i := range res.Messages {
			res.Messages[i].ChatID = h.resolveRaw(res.Messages[i].ChatID)
			res.Messages[i].SenderID = h.resolveRaw(res.Messages[i].SenderID)
		}
	}
	h.logger.Info("history sync received",
		zap.String("type", res.SyncType),
		zap.Int("chats", len(res.Chats)),
		zap.Int("messages", len(res.Messages)),
	)
	h.publish(store.KindHistory, res)
}

// resolveRaw is resolveJID for identifiers already in string form.
func (h *EventHandler) resolveRaw(id string) string {
	j, err := types.ParseJID(id)
	if err != nil {
		return id
	}
	return h.resolveJID(j)
}
