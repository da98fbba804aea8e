// Package daemon assembles the wsync daemon: one session's event
// adapter, sync engine, snapshot persistence and lifecycle, wired
// through fx.
package daemon

import (
	"context"
	"errors"
	"io"
	"io/fs"

	"github.com/tfaria/wsync/internal/bus"
	"github.com/tfaria/wsync/internal/config"
	"github.com/tfaria/wsync/internal/lock"
	"github.com/tfaria/wsync/internal/logging"
	"github.com/tfaria/wsync/internal/session"
	"github.com/tfaria/wsync/internal/status"
	"github.com/tfaria/wsync/internal/storage"
	"github.com/tfaria/wsync/internal/store"
	intsync "github.com/tfaria/wsync/internal/sync"
	"github.com/tfaria/wsync/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
}

// snapshotTarget names where this session's snapshot lives.
type snapshotTarget struct {
	backend storage.Backend
	path    string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideAdapter,
			provideStore,
			provideSnapshotTarget,
			provideSyncEngine,
			provideAutosaver,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		// Missing config is the common case. A config that exists but
		// does not parse should stop the daemon, not be papered over.
		if errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideAdapter(p Params, b *bus.Bus, logger *zap.Logger) (*wa.Adapter, error) {
	// Construction order between providers is not guaranteed, so the
	// session dir is ensured here as well as in provideLock.
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	return wa.NewAdapter(context.Background(), p.SessionName, b, logger)
}

func provideStore(cfg *config.Config, adapter *wa.Adapter, logger *zap.Logger) *store.Store {
	return store.New(store.Options{
		Logger:       logger,
		Pictures:     adapter,
		Groups:       adapter,
		RepoCapacity: cfg.Store.RepoCapacity,
		Compress:     cfg.Snapshot.Compress,
	})
}

func provideSnapshotTarget(p Params, cfg *config.Config, logger *zap.Logger) (*snapshotTarget, error) {
	if cfg.Snapshot.Backend == config.BackendSQLite {
		dbPath := session.SnapshotDBPath(p.SessionName)
		db, err := storage.OpenSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		logger.Info("snapshot backend ready",
			zap.String("backend", "sqlite"), zap.String("path", dbPath))
		return &snapshotTarget{backend: db, path: "snapshot"}, nil
	}
	path := session.SnapshotPath(p.SessionName)
	logger.Info("snapshot backend ready",
		zap.String("backend", "file"), zap.String("path", path))
	return &snapshotTarget{backend: storage.NewFile(), path: path}, nil
}

func provideSyncEngine(st *store.Store, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(st, b, logger)
}

func provideAutosaver(cfg *config.Config, st *store.Store, target *snapshotTarget, logger *zap.Logger) *intsync.Autosaver {
	return intsync.NewAutosaver(st, target.backend, target.path, cfg.Snapshot.SaveInterval(), logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, adapter *wa.Adapter, st *store.Store, target *snapshotTarget, engine *intsync.Engine, saver *intsync.Autosaver, machine *status.Machine, b *bus.Bus, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Restore the last snapshot so queries work before the
			// connection comes up.
			if st.ReadFrom(target.backend, target.path) {
				stats := st.Stats()
				logger.Info("snapshot restored",
					zap.Int("chats", stats.Chats),
					zap.Int("contacts", stats.Contacts),
					zap.Int("messages", stats.Messages),
				)
			}

			// Start sync engine (subscribes to wa.* bus events).
			engine.Start(context.Background())

			// Register event handler for whatsmeow events.
			handler := wa.NewEventHandler(b, machine, adapter, logger)
			adapter.RegisterEventHandler(handler.Handle)

			saver.Start(context.Background())

			// Transition state based on auth status.
			if adapter.IsLoggedIn() {
				_ = machine.Transition(status.Connecting)
				go func() {
					if err := adapter.Connect(); err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
						_ = machine.Transition(status.Failed)
					}
				}()
			} else {
				logger.Info("no credentials found, auth required")
				_ = machine.Transition(status.AuthRequired)
				go runQRAuth(adapter, logger)
			}

			return nil
		},
		OnStop: func(_ context.Context) error {
			// Disconnect first so no new events race the final
			// snapshot, then drain the engine before saving.
			adapter.Disconnect()
			engine.Stop()
			saver.Stop()
			if c, ok := target.backend.(io.Closer); ok {
				if err := c.Close(); err != nil {
					logger.Warn("error closing snapshot backend", zap.Error(err))
				}
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			if n := b.Dropped(); n > 0 {
				logger.Warn("events dropped on full subscriber buffers", zap.Uint64("count", n))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// runQRAuth drives the pairing flow headlessly, logging each code. The
// codes are raw pairing strings; any QR renderer can display them.
func runQRAuth(adapter *wa.Adapter, logger *zap.Logger) {
	ch, err := adapter.StartQRAuth(context.Background())
	if err != nil {
		logger.Error("QR auth failed to start", zap.Error(err))
		return
	}
	for evt := range ch {
		switch evt.Type {
		case wa.AuthEventQRCode:
			logger.Info("pairing code", zap.String("code", evt.QRCode))
		case wa.AuthEventAuthenticated:
			logger.Info("authenticated")
		case wa.AuthEventTimeout:
			logger.Warn("pairing timed out; restart the daemon to retry")
		case wa.AuthEventAuthFailed:
			logger.Error("pairing failed", zap.String("reason", evt.Message))
		}
	}
}
