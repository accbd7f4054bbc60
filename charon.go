// Package charon wires the Token Factory, Session Store, Session
// Engine and Token Pipeline together from a config.Config — the
// library-level equivalent of the teacher's cmd/auth-service/main.go
// wiring (load config, init logger, run migrations, construct
// repositories, construct services). A host embedding Charon is free
// to construct engine.Engine and pipeline.Pipeline directly instead;
// this is a convenience entry point for the common case.
package charon

import (
	"context"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/UpperCi/charon/config"
	"github.com/UpperCi/charon/engine"
	"github.com/UpperCi/charon/internal/events"
	"github.com/UpperCi/charon/internal/metrics"
	"github.com/UpperCi/charon/pipeline"
	"github.com/UpperCi/charon/session"
	storepostgres "github.com/UpperCi/charon/store/postgres"
	storeredis "github.com/UpperCi/charon/store/redis"
	"github.com/UpperCi/charon/token"
	"github.com/UpperCi/charon/transport"
)

// Charon bundles the two collaborators a host actually calls into.
type Charon struct {
	Engine   *engine.Engine
	Pipeline *pipeline.Pipeline

	closers []func() error
}

// Close releases whatever optional modules were wired in (the Kafka
// event publisher, primarily).
func (c *Charon) Close() error {
	var firstErr error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// New builds a Charon instance from cfg, selecting the Store
// implementation cfg.SessionStoreModule names and wiring the optional
// metrics/events modules cfg.OptionalModules enables.
func New(ctx context.Context, cfg *config.Config, signingKeys token.KeyGetter, integrityKeys storeredis.KeyGetter, redisClient goredis.Cmdable, postgresPool *pgxpool.Pool, logger *zap.Logger) (*Charon, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var store session.Store
	switch cfg.SessionStoreModule {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("charon: session_store_module=redis requires a redis client")
		}
		store = storeredis.New(redisClient, integrityKeys, cfg.RedisKeyPrefix, logger)
	case "postgres":
		if postgresPool == nil {
			return nil, fmt.Errorf("charon: session_store_module=postgres requires a postgres pool")
		}
		if err := storepostgres.Migrate(cfg.PostgresDSN); err != nil {
			return nil, fmt.Errorf("charon: migrate postgres store: %w", err)
		}
		store = storepostgres.New(postgresPool, logger)
	default:
		return nil, fmt.Errorf("charon: unknown session_store_module %q", cfg.SessionStoreModule)
	}

	factory := token.NewFactory(signingKeys)

	var opts []engine.Option
	var closers []func() error

	if cfg.OptionalModules["metrics"] {
		opts = append(opts, engine.WithMetrics(metrics.NewRecorder(prometheus.DefaultRegisterer)))
	}
	if cfg.OptionalModules["events"] {
		publisher := events.NewPublisher(cfg.KafkaBrokerList(), cfg.KafkaEventsTopic, logger)
		opts = append(opts, engine.WithEvents(publisher))
		closers = append(closers, publisher.Close)
	}

	eng := engine.New(store, factory, engine.Config{
		Issuer:            cfg.TokenIssuer,
		AccessTokenTTL:    cfg.AccessTokenTTL,
		RefreshTokenTTL:   cfg.RefreshTokenTTL,
		SessionTTL:        cfg.SessionTTL,
		CookieNames:       transportCookieNames(cfg),
		AccessCookieOpts:  cfg.AccessCookieOpts(),
		RefreshCookieOpts: cfg.RefreshCookieOpts(),
	}, logger, opts...)

	pipe := pipeline.New(factory, store, logger)

	return &Charon{Engine: eng, Pipeline: pipe, closers: closers}, nil
}

func transportCookieNames(cfg *config.Config) transport.CookieNames {
	return transport.CookieNames{
		Access:  cfg.AccessCookieName,
		Refresh: cfg.RefreshCookieName,
	}
}
