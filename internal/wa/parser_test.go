package wa

import (
	"testing"
	"time"

	"github.com/tfaria/wsync/internal/store"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func TestExtractTextBody(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hi")}, "hi"},
		{
			"extended text",
			&waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("linked")}},
			"linked",
		},
		{
			"image without caption",
			&waE2E.Message{ImageMessage: &waE2E.ImageMessage{}},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractTextBody(tt.msg); got != tt.want {
				t.Errorf("extractTextBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectMessageType(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, "unknown"},
		{"conversation", &waE2E.Message{Conversation: proto.String("hi")}, "text"},
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, "image"},
		{"video", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{}}, "video"},
		{"audio", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, "audio"},
		{"document", &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}}, "document"},
		{"sticker", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, "sticker"},
		{"contact", &waE2E.Message{ContactMessage: &waE2E.ContactMessage{}}, "contact"},
		{"location", &waE2E.Message{LocationMessage: &waE2E.LocationMessage{}}, "location"},
		{"reaction", &waE2E.Message{ReactionMessage: &waE2E.ReactionMessage{}}, "reaction"},
		{"empty", &waE2E.Message{}, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMessageType(tt.msg); got != tt.want {
				t.Errorf("detectMessageType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLiveMessage(t *testing.T) {
	evt := &events.Message{
		Info: types.MessageInfo{
			ID:        "live1",
			Timestamp: time.Unix(1700000000, 0),
			PushName:  "Alice",
			MessageSource: types.MessageSource{
				Chat:   types.JID{User: "5511999990000", Server: types.DefaultUserServer},
				Sender: types.JID{User: "5511988887777", Server: types.DefaultUserServer, Device: 3},
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("oi")},
	}

	msg := ParseLiveMessage(evt)
	if msg.ID != "live1" || msg.Body != "oi" || msg.Type != "text" {
		t.Errorf("message = %+v", msg)
	}
	if msg.ChatID != "5511999990000@s.whatsapp.net" {
		t.Errorf("chat = %q", msg.ChatID)
	}
	if msg.SenderID != "5511988887777@s.whatsapp.net" {
		t.Errorf("sender = %q, want device stripped", msg.SenderID)
	}
	if msg.SenderName != "Alice" || msg.FromMe {
		t.Errorf("sender name = %q fromMe = %v", msg.SenderName, msg.FromMe)
	}
	if msg.Timestamp != 1700000000 {
		t.Errorf("timestamp = %d, want unix seconds", msg.Timestamp)
	}
	if msg.Status != store.StatusDeliveryAck {
		t.Errorf("status = %d, want DELIVERY_ACK for incoming", msg.Status)
	}
}

func TestParseLiveMessageFromMe(t *testing.T) {
	evt := &events.Message{
		Info: types.MessageInfo{
			ID:        "live2",
			Timestamp: time.Unix(1700000001, 0),
			MessageSource: types.MessageSource{
				Chat:     types.JID{User: "5511999990000", Server: types.DefaultUserServer},
				Sender:   types.JID{User: "5511911112222", Server: types.DefaultUserServer},
				IsFromMe: true,
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("sent elsewhere")},
	}

	msg := ParseLiveMessage(evt)
	if !msg.FromMe {
		t.Error("fromMe not set")
	}
	if msg.Status != store.StatusServerAck {
		t.Errorf("status = %d, want SERVER_ACK for own echo", msg.Status)
	}
}

func TestParseHistory(t *testing.T) {
	ts := uint64(1700000000)
	data := &waHistorySync.HistorySync{
		SyncType: waHistorySync.HistorySync_RECENT.Enum(),
		Conversations: []*waHistorySync.Conversation{
			{
				ID:                    proto.String("5511999990000:4@s.whatsapp.net"),
				Name:                  proto.String("Bruna"),
				UnreadCount:           proto.Uint32(1),
				Archived:              proto.Bool(true),
				ConversationTimestamp: proto.Uint64(1700000000),
				Messages: []*waHistorySync.HistorySyncMsg{
					{
						Message: &waWeb.WebMessageInfo{
							Key: &waCommon.MessageKey{
								ID:        proto.String("h1"),
								FromMe:    proto.Bool(true),
								RemoteJID: proto.String("5511999990000@s.whatsapp.net"),
							},
							MessageTimestamp: &ts,
							Message:          &waE2E.Message{Conversation: proto.String("sent")},
							Status:           waWeb.WebMessageInfo_DELIVERY_ACK.Enum(),
						},
					},
					{
						Message: &waWeb.WebMessageInfo{
							Key: &waCommon.MessageKey{
								ID:        proto.String("h2"),
								FromMe:    proto.Bool(false),
								RemoteJID: proto.String("5511999990000@s.whatsapp.net"),
							},
							MessageTimestamp: &ts,
							Message:          &waE2E.Message{Conversation: proto.String("reply")},
							PushName:         proto.String("Bruna"),
							Status:           waWeb.WebMessageInfo_READ.Enum(),
						},
					},
					// No key, dropped.
					{Message: &waWeb.WebMessageInfo{}},
					nil,
				},
			},
		},
	}

	hs := ParseHistory(data)
	if hs.SyncType != store.SyncRecent || hs.IsLatest {
		t.Errorf("type = %q latest = %v", hs.SyncType, hs.IsLatest)
	}
	if len(hs.Chats) != 1 {
		t.Fatalf("chats = %d, want 1", len(hs.Chats))
	}
	chat := hs.Chats[0]
	if chat.ID != "5511999990000@s.whatsapp.net" {
		t.Errorf("chat id = %q, want device suffix stripped", chat.ID)
	}
	if !chat.Archived || chat.Pinned || chat.UnreadCount != 1 || chat.ConversationTimestamp != 1700000000 {
		t.Errorf("chat = %+v", chat)
	}

	if len(hs.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(hs.Messages))
	}
	sent, reply := hs.Messages[0], hs.Messages[1]
	if !sent.FromMe || sent.Status != store.StatusDeliveryAck || sent.SenderID != "" {
		t.Errorf("sent = %+v", sent)
	}
	if reply.FromMe || reply.Status != store.StatusRead {
		t.Errorf("reply = %+v", reply)
	}
	// Incoming direct message without participant belongs to the peer.
	if reply.SenderID != "5511999990000@s.whatsapp.net" {
		t.Errorf("reply sender = %q", reply.SenderID)
	}

	// Conversation name plus the reply's push name.
	if len(hs.Contacts) != 2 {
		t.Errorf("contacts = %+v", hs.Contacts)
	}
}

func TestParseHistoryGroupConversation(t *testing.T) {
	ts := uint64(1700000000)
	data := &waHistorySync.HistorySync{
		SyncType: waHistorySync.HistorySync_FULL.Enum(),
		Conversations: []*waHistorySync.Conversation{
			{
				ID:   proto.String("120363000000000000@g.us"),
				Name: proto.String("Familia"),
				Messages: []*waHistorySync.HistorySyncMsg{
					{
						Message: &waWeb.WebMessageInfo{
							Key: &waCommon.MessageKey{
								ID:          proto.String("g1"),
								FromMe:      proto.Bool(false),
								RemoteJID:   proto.String("120363000000000000@g.us"),
								Participant: proto.String("5511988887777:12@s.whatsapp.net"),
							},
							MessageTimestamp: &ts,
							Message:          &waE2E.Message{Conversation: proto.String("bom dia")},
						},
					},
				},
			},
		},
	}

	hs := ParseHistory(data)
	if !hs.Chats[0].IsGroup {
		t.Error("group conversation not flagged")
	}
	if hs.Messages[0].SenderID != "5511988887777@s.whatsapp.net" {
		t.Errorf("participant = %q, want device stripped", hs.Messages[0].SenderID)
	}
	// Group subjects are not contact names.
	for _, c := range hs.Contacts {
		if c.ID == "120363000000000000@g.us" {
			t.Errorf("group leaked into contacts: %+v", c)
		}
	}
}

func TestParseHistoryLegacyServer(t *testing.T) {
	data := &waHistorySync.HistorySync{
		Conversations: []*waHistorySync.Conversation{
			{ID: proto.String("5511999990000@c.us")},
		},
	}

	hs := ParseHistory(data)
	if hs.Chats[0].ID != "5511999990000@s.whatsapp.net" {
		t.Errorf("chat id = %q, want legacy server mapped", hs.Chats[0].ID)
	}
}

func TestSyncTypeString(t *testing.T) {
	tests := []struct {
		in   waHistorySync.HistorySync_HistorySyncType
		want string
	}{
		{waHistorySync.HistorySync_INITIAL_BOOTSTRAP, store.SyncInitialBootstrap},
		{waHistorySync.HistorySync_INITIAL_STATUS_V3, store.SyncInitialStatus},
		{waHistorySync.HistorySync_FULL, store.SyncFull},
		{waHistorySync.HistorySync_RECENT, store.SyncRecent},
		{waHistorySync.HistorySync_PUSH_NAME, store.SyncPushName},
		{waHistorySync.HistorySync_NON_BLOCKING_DATA, store.SyncNonBlockingData},
		{waHistorySync.HistorySync_ON_DEMAND, store.SyncOnDemand},
	}
	for _, tt := range tests {
		if got := syncTypeString(tt.in); got != tt.want {
			t.Errorf("syncTypeString(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
