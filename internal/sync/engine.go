// Package sync drives the store from the event bus: the engine drains
// inbound protocol events and applies them one at a time, and the
// autosaver persists the result on an interval.
package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tfaria/wsync/internal/bus"
	"github.com/tfaria/wsync/internal/store"
)

// Engine applies inbound protocol events to the store. It subscribes to
// the wa. namespace on the bus and handles events strictly one at a
// time, so the store sees mutations in arrival order.
type Engine struct {
	store  *store.Store
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates a sync engine.
func NewEngine(st *store.Store, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: st, bus: b, logger: logger}
}

// Start subscribes to inbound protocol events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("wa.", 256)
	e.done = make(chan struct{})

	go func() {
		defer unsub()
		defer close(e.done)
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the subscription and waits for the drain goroutine to
// exit, so no handler is mid-flight when the final snapshot is taken.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

// handleEvent dispatches on the payload type. Each wa. kind carries
// exactly one payload type, so the kind string never needs inspecting.
func (e *Engine) handleEvent(evt bus.Event) {
	switch p := evt.Payload.(type) {
	case store.ConnectionUpdate:
		e.store.ApplyConnection(p)
	case store.HistorySync:
		e.applyHistory(p)
	case []store.Contact:
		e.store.UpsertContacts(p)
	case []store.ContactPatch:
		e.store.UpdateContacts(p)
	case []store.Chat:
		e.store.UpsertChats(p)
	case []store.ChatPatch:
		e.store.UpdateChats(p)
	case []string:
		e.store.DeleteChats(p)
	case store.MessageUpsert:
		e.applyMessages(p)
	case []store.MessagePatch:
		e.store.UpdateMessages(p)
	case store.MessageDelete:
		e.store.DeleteMessages(p)
	case []store.ReceiptUpdate:
		e.store.ApplyReceipts(p)
	case []store.ReactionUpdate:
		e.store.ApplyReactions(p)
	case []store.GroupPatch:
		e.store.UpdateGroups(p)
	case store.ParticipantsUpdate:
		e.store.UpdateParticipants(p)
	case store.Label:
		e.store.EditLabel(p)
	case store.LabelBatch:
		e.store.SetLabels(p)
	case store.LabelAssociationUpdate:
		e.store.ApplyLabelAssociation(p)
	case store.PresenceUpdate:
		e.store.ApplyPresence(p)
	default:
		e.logger.Debug("unhandled event", zap.String("kind", evt.Kind))
	}
}

func (e *Engine) applyHistory(h store.HistorySync) {
	res := e.store.ApplyHistory(h)
	if res.Ignored {
		return
	}
	e.logger.Info("history sync applied",
		zap.String("type", h.SyncType),
		zap.Bool("latest", h.IsLatest),
		zap.Int("new_chats", res.NewChats),
		zap.Int("contacts", res.Contacts),
		zap.Int("messages", res.Messages))
	e.bus.Publish(bus.Event{
		Kind:      store.KindSyncHistory,
		Timestamp: time.Now(),
		Payload:   res,
	})
}

func (e *Engine) applyMessages(u store.MessageUpsert) {
	created := e.store.UpsertMessages(u)
	if len(created) > 0 {
		e.bus.Publish(bus.Event{
			Kind:      store.KindSyncNewChats,
			Timestamp: time.Now(),
			Payload:   created,
		})
	}
	for _, m := range u.Messages {
		e.bus.Publish(bus.Event{
			Kind:      store.KindSyncMessage,
			Timestamp: time.Now(),
			Payload: map[string]string{
				"chat": m.ChatID,
				"id":   m.ID,
			},
		})
	}
}
