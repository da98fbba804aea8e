// Package wa connects the store to WhatsApp. The Adapter owns the
// whatsmeow client and its sqlite credential store; the EventHandler
// translates whatsmeow events into the typed payloads the sync engine
// consumes. Nothing in this package touches the store directly, it only
// publishes on the bus and answers on-demand fetches.
package wa

import (
	"context"
	"errors"
	"fmt"

	"github.com/tfaria/wsync/internal/bus"
	"github.com/tfaria/wsync/internal/session"
	"github.com/tfaria/wsync/internal/store"
	"go.mau.fi/whatsmeow"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

// Adapter wraps the whatsmeow client and manages the WhatsApp connection.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	bus       *bus.Bus
	logger    *zap.Logger
	session   string
}

// The store fetches pictures and group metadata through these.
var (
	_ store.ProfilePictureFetcher = (*Adapter)(nil)
	_ store.GroupFetcher          = (*Adapter)(nil)
)

// NewAdapter creates a new WhatsApp adapter for the given session.
func NewAdapter(ctx context.Context, sessionName string, b *bus.Bus, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("wsync", [3]uint32{0, 1, 0})

	dbPath := session.SessionDBPath(sessionName)

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, nil)

	return &Adapter{
		client:    client,
		container: container,
		bus:       b,
		logger:    logger,
		session:   sessionName,
	}, nil
}

// Client returns the underlying whatsmeow client.
func (a *Adapter) Client() *whatsmeow.Client {
	return a.client
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// Connect initiates the WhatsApp connection.
func (a *Adapter) Connect() error {
	a.logger.Info("connecting to WhatsApp")
	return a.client.Connect()
}

// Disconnect terminates the WhatsApp connection.
func (a *Adapter) Disconnect() {
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// Logout invalidates the session and removes credentials.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// RegisterEventHandler adds a handler for whatsmeow events.
func (a *Adapter) RegisterEventHandler(handler whatsmeow.EventHandler) {
	a.client.AddEventHandler(handler)
}

// GetQRChannel returns the QR channel for pairing. Must be called before Connect.
func (a *Adapter) GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	if a.IsLoggedIn() {
		return nil, fmt.Errorf("already logged in")
	}
	ch, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("get QR channel: %w", err)
	}
	return ch, nil
}

// PhoneNumber returns the phone number from the device store, or empty string.
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}

// Contacts returns the device store's address book as store contacts,
// with the lid mapping attached where the device store knows one. Used
// to seed the replica before the first history sync lands.
func (a *Adapter) Contacts(ctx context.Context) []store.Contact {
	allContacts, err := a.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		a.logger.Warn("failed to get contacts from device store", zap.Error(err))
		return nil
	}
	var contacts []store.Contact
	for jid, info := range allContacts {
		normalized := jid.ToNonAD()
		c := store.Contact{
			ID:     normalized.String(),
			Name:   info.FullName,
			Notify: info.PushName,
		}
		if normalized.Server == types.DefaultUserServer {
			lid, err := a.client.Store.LIDs.GetLIDForPN(ctx, normalized)
			if err == nil && !lid.IsEmpty() {
				c.LID = lid.String()
			}
		}
		contacts = append(contacts, c)
	}
	return contacts
}

// ProfilePicture fetches a contact's or group's picture URL. A missing
// or inaccessible picture reports as absent rather than as an error so
// the store caches it and stops asking.
func (a *Adapter) ProfilePicture(ctx context.Context, id string) (string, error) {
	jid, err := types.ParseJID(id)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	info, err := a.client.GetProfilePictureInfo(ctx, jid, nil)
	if err != nil {
		if errors.Is(err, whatsmeow.ErrProfilePictureNotSet) ||
			errors.Is(err, whatsmeow.ErrProfilePictureUnauthorized) {
			return "", nil
		}
		return "", fmt.Errorf("get profile picture: %w", err)
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

// GroupInfo fetches group metadata from the server and converts it to
// the store's shape. Participant lid mappings ride along so the store
// can learn them.
func (a *Adapter) GroupInfo(ctx context.Context, id string) (store.GroupMetadata, error) {
	jid, err := types.ParseJID(id)
	if err != nil {
		return store.GroupMetadata{}, fmt.Errorf("parse JID: %w", err)
	}
	info, err := a.client.GetGroupInfo(ctx, jid)
	if err != nil {
		return store.GroupMetadata{}, fmt.Errorf("get group info: %w", err)
	}

	meta := store.GroupMetadata{
		ID:       info.JID.String(),
		Subject:  info.Name,
		Created:  info.GroupCreated.Unix(),
		Announce: info.IsAnnounce,
	}
	if !info.OwnerJID.IsEmpty() {
		meta.Owner = info.OwnerJID.ToNonAD().String()
	}
	for _, p := range info.Participants {
		gp := store.GroupParticipant{
			ID:           p.JID.ToNonAD().String(),
			IsAdmin:      p.IsAdmin,
			IsSuperAdmin: p.IsSuperAdmin,
		}
		if !p.LID.IsEmpty() {
			gp.LID = p.LID.ToNonAD().String()
		}
		meta.Participants = append(meta.Participants, gp)
	}
	return meta, nil
}

// ResolveLID resolves a LID JID to its phone number JID using the device
// store mapping. Returns the original JID if it's not a LID or if
// resolution fails.
func (a *Adapter) ResolveLID(ctx context.Context, jid types.JID) types.JID {
	if jid.Server != types.HiddenUserServer && jid.Server != types.HostedLIDServer {
		return jid
	}
	if a.client == nil || a.client.Store == nil || a.client.Store.LIDs == nil {
		return jid
	}
	pn, err := a.client.Store.LIDs.GetPNForLID(ctx, jid)
	if err != nil || pn.IsEmpty() {
		return jid
	}
	return pn
}
