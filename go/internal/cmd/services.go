package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/finoxa/go/clients/supabase_client"
	"github.com/mcdev12/finoxa/go/internal/config"
	"github.com/mcdev12/finoxa/go/internal/cooldown"
	"github.com/mcdev12/finoxa/go/internal/cooldown/gateway"
	"github.com/mcdev12/finoxa/go/internal/cooldown/publisher"
	"github.com/mcdev12/finoxa/go/internal/cooldown/rpc"
	"github.com/mcdev12/finoxa/go/internal/kvstore"
	"github.com/mcdev12/finoxa/go/internal/resendlog"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Infra holds the external connections the services are built on. Fields are
// nil when the configuration does not need them.
type Infra struct {
	DB   *sql.DB
	Pool *pgxpool.Pool
	NATS *nats.Conn
	JS   jetstream.JetStream
}

func setupInfra(ctx context.Context, cfg *config.Config) (*Infra, error) {
	infra := &Infra{}

	if needsDatabase(cfg) {
		db, err := setupDatabase(ctx)
		if err != nil {
			return nil, err
		}
		infra.DB = db
	}
	if cfg.Audit.Enabled {
		pool, err := setupPool(ctx)
		if err != nil {
			infra.Close()
			return nil, err
		}
		infra.Pool = pool
	}
	if cfg.NATS.Enabled {
		jsCfg := publisher.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		nc, err := publisher.Connect(jsCfg)
		if err != nil {
			infra.Close()
			return nil, err
		}
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			infra.Close()
			return nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		infra.NATS = nc
		infra.JS = js
		log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS")
	}
	return infra, nil
}

func (i *Infra) Close() {
	if i.NATS != nil {
		if err := i.NATS.Drain(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
		}
	}
	if i.Pool != nil {
		i.Pool.Close()
	}
	if i.DB != nil {
		if err := i.DB.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
}

type Services struct {
	App     *cooldown.App
	Gateway *gateway.Service
	RPC     *rpc.Service
	Audit   *resendlog.Repository

	dispatcher *publisher.Dispatcher
}

func setupServices(ctx context.Context, cfg *config.Config, infra *Infra) (*Services, error) {
	// Wire up dependency injection chain
	// Store → Publisher → App → Gateway / RPC

	store, err := setupStore(ctx, cfg, infra)
	if err != nil {
		return nil, err
	}

	flows, err := cfg.CooldownFlows()
	if err != nil {
		return nil, err
	}

	// The JetStream publisher creates the stream the gateway consumes from.
	var jsPublisher *publisher.JetStreamPublisher
	if infra.JS != nil {
		jsCfg := publisher.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsPublisher, err = publisher.NewJetStreamPublisher(ctx, infra.JS, jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}
	}

	// The gateway reads state from the App, which is created below.
	var app *cooldown.App
	stateProvider := gateway.StateProviderFunc(func(ctx context.Context, scope cooldown.Scope) (cooldown.State, error) {
		return app.State(ctx, scope)
	})
	gatewayService, err := gateway.NewService(ctx, gateway.DefaultConfig(), stateProvider, infra.JS)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	var sink publisher.Publisher = gatewayService.Publisher()
	if jsPublisher != nil {
		sink = jsPublisher
	}
	dispatcher := publisher.NewDispatcher(
		publisher.Fanout{sink, publisher.NewLogPublisher(zerolog.DebugLevel)},
		publisher.DefaultDispatcherConfig(),
	)

	appCfg := cooldown.Config{
		Store:     store,
		Flows:     flows,
		Interval:  cfg.Interval,
		Publisher: dispatcher,
	}
	if cfg.Supabase.URL != "" {
		appCfg.Resender = setupSupabase(ctx, cfg.Supabase)
	} else {
		log.Warn().Msg("SUPABASE_URL not set, resends will not send email")
	}

	var audit *resendlog.Repository
	if infra.Pool != nil {
		audit = resendlog.NewRepository(infra.Pool)
		if err := audit.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		appCfg.Audit = audit
		appCfg.Counter = audit
		appCfg.Limit = cfg.Audit.ResendLimit()
	}

	app, err = cooldown.NewApp(appCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create cooldown app: %w", err)
	}

	return &Services{
		App:        app,
		Gateway:    gatewayService,
		RPC:        rpc.NewService(app),
		Audit:      audit,
		dispatcher: dispatcher,
	}, nil
}

// setupSupabase builds the auth client. An unhealthy API is logged but does not
// stop startup.
func setupSupabase(ctx context.Context, cfg config.SupabaseConfig) *supabase_client.SupabaseClient {
	client := supabase_client.NewSupabaseClient(cfg.URL, cfg.AnonKey)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Health(healthCtx); err != nil {
		log.Warn().Err(err).Msg("supabase auth API health check failed")
	} else {
		log.Info().Str("url", client.BaseURL()).Msg("connected to supabase auth API")
	}
	return client
}

func setupStore(ctx context.Context, cfg *config.Config, infra *Infra) (kvstore.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return kvstore.NewMemoryStore(), nil
	case config.BackendFile:
		return kvstore.NewFileStore(cfg.Store.File), nil
	case config.BackendSQL:
		if infra.DB == nil {
			return nil, errors.New("sql store backend requires a database")
		}
		hostname, _ := os.Hostname()
		opts := []kvstore.SQLOption{
			kvstore.WithWriterAttributes(map[string]string{"host": hostname, "pid": fmt.Sprint(os.Getpid())}),
		}
		if cfg.Store.Table != "" {
			opts = append(opts, kvstore.WithTable(cfg.Store.Table))
		}
		store, err := kvstore.NewSQLStore(infra.DB, opts...)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure store schema: %w", err)
		}
		return store, nil
	case config.BackendNATS:
		if infra.JS == nil {
			return nil, errors.New("nats store backend requires a NATS connection")
		}
		natsCfg := kvstore.DefaultNATSConfig()
		if cfg.Store.Bucket != "" {
			natsCfg.Bucket = cfg.Store.Bucket
		}
		if cfg.Store.TTL > 0 {
			natsCfg.TTL = cfg.Store.TTL
		}
		return kvstore.NewNATSStore(ctx, infra.JS, natsCfg)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// Close stops every countdown and flushes pending events.
func (s *Services) Close() {
	s.App.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.dispatcher.Close(ctx); err != nil {
		log.Error().Err(err).Msg("failed to flush cooldown events")
	}
	if dropped := s.dispatcher.Dropped(); dropped > 0 {
		log.Warn().Uint64("dropped", dropped).Msg("cooldown events were dropped")
	}
}
