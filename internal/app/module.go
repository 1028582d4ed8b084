// Package app composes the messaging core for the headless daemon with fx
// providers and lifecycle hooks.
package app

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/imramesh222/bms-chat/internal/auth"
	"github.com/imramesh222/bms-chat/internal/bus"
	"github.com/imramesh222/bms-chat/internal/client"
	"github.com/imramesh222/bms-chat/internal/config"
	"github.com/imramesh222/bms-chat/internal/conn"
	"github.com/imramesh222/bms-chat/internal/delivery"
	"github.com/imramesh222/bms-chat/internal/lock"
	"github.com/imramesh222/bms-chat/internal/logging"
	"github.com/imramesh222/bms-chat/internal/profile"
	"github.com/imramesh222/bms-chat/internal/reconcile"
	"github.com/imramesh222/bms-chat/internal/rest"
	"github.com/imramesh222/bms-chat/internal/store"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	ConfigPath string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("bmschatd",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideTokenSource,
			provideBus,
			provideStore,
			provideConnManager,
			provideRESTClient,
			provideReconciler,
			provideDelivery,
			provideCore,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	path := p.ConfigPath
	if path == "" {
		path = profile.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.Profile), p.Profile)
}

func provideTokenSource(cfg *config.Config) auth.TokenSource {
	return auth.Env(cfg.Server.TokenEnv)
}

func provideBus(logger *zap.Logger) *bus.Bus {
	return bus.New(logger)
}

func provideStore(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *store.Store {
	return store.New(cfg.Server.UserID, b, logger)
}

func provideConnManager(cfg *config.Config, tokens auth.TokenSource, logger *zap.Logger) *conn.Manager {
	cc := cfg.Connection
	return conn.NewManager(conn.Options{
		TokenSource:  tokens,
		Logger:       logger,
		PingInterval: time.Duration(cc.PingIntervalSeconds) * time.Second,
		PongTimeout:  time.Duration(cc.PongTimeoutSeconds) * time.Second,
		BackoffBase:  time.Duration(cc.BackoffBaseMillis) * time.Millisecond,
		BackoffCap:   time.Duration(cc.BackoffCapMillis) * time.Millisecond,
		MaxAttempts:  cc.MaxAttempts,
		QueueCap:     cc.QueueCap,
	})
}

func provideRESTClient(cfg *config.Config, tokens auth.TokenSource, logger *zap.Logger) *rest.Client {
	return rest.NewClient(cfg.Server.BaseURL, tokens, logger)
}

func provideReconciler(cfg *config.Config, st *store.Store, logger *zap.Logger) *reconcile.Reconciler {
	window := time.Duration(cfg.Reconcile.DedupWindowSeconds) * time.Second
	return reconcile.New(st, window, logger)
}

func provideDelivery(st *store.Store, m *conn.Manager, api *rest.Client, rec *reconcile.Reconciler, b *bus.Bus, logger *zap.Logger) *delivery.Coordinator {
	return delivery.New(st, m, api, rec, b, logger)
}

func provideCore(cfg *config.Config, m *conn.Manager, b *bus.Bus, st *store.Store, rec *reconcile.Reconciler, del *delivery.Coordinator, api *rest.Client, logger *zap.Logger) *client.Core {
	return client.New(client.Deps{
		ServerURL:  cfg.Server.RealtimeEndpoint(),
		Conn:       m,
		Bus:        b,
		Store:      st,
		Reconciler: rec,
		Delivery:   del,
		API:        api,
		Logger:     logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, p Params, core *client.Core, logger *zap.Logger) {
	var lk *lock.Lock

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := profile.EnsureDir(p.Profile); err != nil {
				return err
			}
			var err error
			lk, err = lock.Acquire(profile.Dir(p.Profile))
			if err != nil {
				return err
			}
			logger.Info("profile lock acquired", zap.String("profile", p.Profile))

			if err := core.LoadConversations(ctx); err != nil {
				// The realtime path still works; hydration retries on demand.
				logger.Warn("initial hydration failed", zap.Error(err))
			}

			go func() {
				if err := core.Connect(context.Background()); err != nil {
					logger.Error("connect failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			core.Disconnect()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
