package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tfaria/wsync/internal/storage"
	"github.com/tfaria/wsync/internal/store"
)

// Autosaver periodically persists the store through a storage backend
// and once more on shutdown, so a crash loses at most one interval of
// applied events.
type Autosaver struct {
	store    *store.Store
	backend  storage.Backend
	path     string
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewAutosaver creates an autosaver writing snapshots to path through
// backend every interval.
func NewAutosaver(st *store.Store, backend storage.Backend, path string, interval time.Duration, logger *zap.Logger) *Autosaver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Autosaver{
		store:    st,
		backend:  backend,
		path:     path,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the periodic save loop.
func (a *Autosaver) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})

	go func() {
		defer close(a.done)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.Save()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and writes a final snapshot.
func (a *Autosaver) Stop() {
	if a.cancel != nil {
		a.cancel()
		<-a.done
	}
	a.Save()
}

// Save writes one snapshot now. Failures are logged, not returned; the
// next tick retries.
func (a *Autosaver) Save() {
	start := time.Now()
	if err := a.store.WriteTo(a.backend, a.path); err != nil {
		a.logger.Error("snapshot save failed", zap.String("path", a.path), zap.Error(err))
		return
	}
	a.logger.Debug("snapshot saved",
		zap.String("path", a.path),
		zap.Duration("took", time.Since(start)))
}
