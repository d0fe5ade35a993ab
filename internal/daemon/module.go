// Package daemon composes the inbox daemon: config, storage, provider
// client, sync orchestrator, notification dispatcher and reply submitter,
// wired together with fx.
package daemon

import (
	"context"
	"errors"
	"io/fs"

	"github.com/pageinbox/inboxd/internal/avatar"
	"github.com/pageinbox/inboxd/internal/bus"
	"github.com/pageinbox/inboxd/internal/config"
	"github.com/pageinbox/inboxd/internal/lock"
	"github.com/pageinbox/inboxd/internal/logging"
	"github.com/pageinbox/inboxd/internal/notify"
	"github.com/pageinbox/inboxd/internal/provider"
	"github.com/pageinbox/inboxd/internal/reply"
	"github.com/pageinbox/inboxd/internal/seenset"
	"github.com/pageinbox/inboxd/internal/session"
	"github.com/pageinbox/inboxd/internal/status"
	"github.com/pageinbox/inboxd/internal/store"
	intsync "github.com/pageinbox/inboxd/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	ConfigPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideProvider,
			provideAvatars,
			provideSeenSet,
			provideDispatcher,
			provideOrchestrator,
			provideSubmitter,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = session.ConfigPath()
	}
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		// First run: a default config with no accounts is valid, the
		// daemon just idles until one is added.
		return config.Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(session.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = session.DBPath(p.Profile)
	}
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

func provideProvider(cfg *config.Config, db *store.DB, logger *zap.Logger) provider.Provider {
	return provider.NewClient(cfg.APIBaseURL, db, logger)
}

func provideAvatars(prov provider.Provider) *avatar.Service {
	// The provider interface keeps avatar fetching optional; without it the
	// service still serves generated identicons.
	if f, ok := prov.(provider.AvatarFetcher); ok {
		return avatar.NewService(f)
	}
	return avatar.NewService(nil)
}

func provideSeenSet(db *store.DB, logger *zap.Logger) *seenset.Set {
	seen := seenset.New(seenset.DefaultCapacity)
	if err := seen.Load(db, store.KeySeenMessages); err != nil {
		logger.Warn("seen-set snapshot unreadable, starting empty", zap.Error(err))
	}
	return seen
}

func provideDispatcher(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *notify.Dispatcher {
	return notify.New(notify.Options{
		Desktop:       &notify.BusDesktop{Bus: b},
		Player:        &notify.BusPlayer{Bus: b},
		Bus:           b,
		Logger:        logger,
		SoundEnabled:  cfg.SoundEnabled,
		DesktopOn:     cfg.DesktopNotifications,
		PreviewLength: cfg.PreviewLength,
	})
}

func provideOrchestrator(cfg *config.Config, db *store.DB, prov provider.Provider, b *bus.Bus, seen *seenset.Set, machine *status.Machine, dispatcher *notify.Dispatcher, avatars *avatar.Service, logger *zap.Logger) *intsync.Orchestrator {
	return intsync.New(intsync.Options{
		DB:             db,
		Provider:       prov,
		Bus:            b,
		Seen:           seen,
		Machine:        machine,
		Notifier:       dispatcher,
		Avatars:        avatars,
		Logger:         logger,
		ScanInterval:   cfg.ScanInterval.Std(),
		FocusInterval:  cfg.FocusInterval.Std(),
		ReconcileEvery: cfg.ReconcileEvery,
		CallTimeout:    cfg.CallTimeout.Std(),
	})
}

func provideSubmitter(prov provider.Provider, db *store.DB, orch *intsync.Orchestrator, b *bus.Bus, logger *zap.Logger) *reply.Submitter {
	return reply.New(prov, db, orch.Messages(), b, logger)
}

func accounts(cfg *config.Config) []provider.Account {
	out := make([]provider.Account, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		out = append(out, provider.Account{PageID: a.PageID, AccessToken: a.AccessToken})
	}
	return out
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, orch *intsync.Orchestrator, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			acc := accounts(cfg)
			if len(acc) == 0 {
				logger.Info("no accounts configured, sync idle")
			}
			orch.SelectPages(acc)
			return nil
		},
		OnStop: func(context.Context) error {
			orch.Stop()
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
