// Package app assembles the client-side session stack from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/laundry_pos/internal/api"
	"github.com/Skotchmaster/laundry_pos/internal/authclient"
	"github.com/Skotchmaster/laundry_pos/internal/authhttp"
	"github.com/Skotchmaster/laundry_pos/internal/config"
	"github.com/Skotchmaster/laundry_pos/internal/events"
	"github.com/Skotchmaster/laundry_pos/internal/scheduler"
	"github.com/Skotchmaster/laundry_pos/internal/service"
	"github.com/Skotchmaster/laundry_pos/internal/session"
	"github.com/Skotchmaster/laundry_pos/internal/session/gormstore"
	"github.com/Skotchmaster/laundry_pos/internal/session/memory"
	"github.com/Skotchmaster/laundry_pos/internal/session/redisstore"
	"github.com/Skotchmaster/laundry_pos/pkg/db"
)

type App struct {
	Store   *session.Store
	Session *service.SessionService
	API     *api.Client
	Events  events.Publisher
}

type Options struct {
	Navigator service.Navigator
	OnWarning func(expiresAt time.Time)
	// Scheduler options appended after the configured lead.
	Scheduler []scheduler.Option
	// Backend replaces the configured session store.
	Backend session.Backend
}

func New(ctx context.Context, cfg *config.Client, log *slog.Logger, opts Options) (*App, error) {
	backend := opts.Backend
	if backend == nil {
		var err error
		if backend, err = OpenBackend(ctx, cfg); err != nil {
			return nil, err
		}
	}

	store := session.NewStore(backend, log)
	if len(cfg.KafkaBrokers) > 0 {
		topicCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := events.EnsureTopic(topicCtx, cfg.KafkaBrokers[0], cfg.KafkaTopic); err != nil {
			log.Warn("ensure_topic_failed", "topic", cfg.KafkaTopic, "error", err)
		}
		cancel()
	}
	pub := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)

	svc := service.NewSessionService(service.Deps{
		Store:     store,
		Auth:      authclient.NewClient(cfg.APIURL, cfg.HTTPTimeout),
		Events:    pub,
		Navigator: opts.Navigator,
		Logger:    log,
		OnWarning: opts.OnWarning,
		Scheduler: append([]scheduler.Option{scheduler.WithLead(cfg.WarningLead)}, opts.Scheduler...),
	})

	tr := &authhttp.Transport{Session: svc, Logger: log}
	client, err := api.New(cfg.APIURL, tr, cfg.HTTPTimeout)
	if err != nil {
		_ = store.Close()
		_ = pub.Close()
		return nil, err
	}
	tr.Host = client.Host()

	return &App{Store: store, Session: svc, API: client, Events: pub}, nil
}

// OpenBackend opens the session store named by cfg.SessionStore.
func OpenBackend(ctx context.Context, cfg *config.Client) (session.Backend, error) {
	switch cfg.SessionStore {
	case config.StoreMemory:
		return memory.New(), nil
	case config.StoreSQLite:
		gdb, err := db.OpenSQLite(ctx, cfg.SessionDBPath)
		if err != nil {
			return nil, err
		}
		return gormstore.New(gdb)
	case config.StorePostgres:
		gdb, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return gormstore.New(gdb)
	case config.StoreRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		return redisstore.New(redisstore.Config{Client: rdb, KeyPrefix: cfg.RedisPrefix})
	}
	return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
}

func (a *App) Close() error {
	a.Session.Scheduler().Cancel()
	return errors.Join(a.Events.Close(), a.Store.Close())
}
