package daemon

import (
	"context"
	"path/filepath"

	"github.com/agencykit/projectchat/internal/api"
	"github.com/agencykit/projectchat/internal/attach"
	"github.com/agencykit/projectchat/internal/bus"
	"github.com/agencykit/projectchat/internal/config"
	"github.com/agencykit/projectchat/internal/ingest"
	"github.com/agencykit/projectchat/internal/lock"
	"github.com/agencykit/projectchat/internal/logging"
	"github.com/agencykit/projectchat/internal/metrics"
	"github.com/agencykit/projectchat/internal/presence"
	"github.com/agencykit/projectchat/internal/store"
	"github.com/agencykit/projectchat/internal/ws"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config *config.Config
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideMetrics,
			provideBus,
			provideLock,
			provideStore,
			provideLinker,
			provideIngest,
			providePresence,
			provideHub,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.Config.LogFile)
}

func provideMetrics() *metrics.Set {
	return metrics.New()
}

func provideBus(m *metrics.Set) *bus.Bus {
	b := bus.New()
	b.SetDropHook(func(bus.Event) { m.EventsDropped.Inc() })
	return b
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data dir lock", zap.String("dir", p.Config.DataDir))
	l, err := lock.Acquire(p.Config.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := filepath.Join(p.Config.DataDir, "chat.db")
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideLinker(p Params) *attach.Linker {
	return attach.NewLinker(p.Config.MaxAttachmentSize)
}

func provideIngest(db *store.DB, linker *attach.Linker, b *bus.Bus, logger *zap.Logger, m *metrics.Set) *ingest.Service {
	return ingest.NewService(db, linker, b, logger, m)
}

func providePresence(p Params, b *bus.Bus, logger *zap.Logger, m *metrics.Set) *presence.Tracker {
	return presence.NewTracker(b, p.Config.TypingTTL(), logger, m)
}

func provideHub(b *bus.Bus, logger *zap.Logger, m *metrics.Set) *ws.Hub {
	return ws.NewHub(b, logger, m)
}

func provideHandler(p Params, db *store.DB, svc *ingest.Service, tracker *presence.Tracker,
	hub *ws.Hub, logger *zap.Logger, m *metrics.Set) *api.Handler {
	return api.NewHandler(db, svc, tracker, hub, logger, m, api.Options{
		DefaultLimit: p.Config.HistoryLimit,
		MaxLimit:     p.Config.MaxHistoryLimit,
		TypingRPS:    p.Config.TypingRPS,
		TypingBurst:  p.Config.TypingBurst,
	})
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, tracker *presence.Tracker,
	db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			tracker.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			tracker.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
