package di

import (
	"context"
	"fmt"
	"time"

	"candlestick/internal/domain/repository"
	"candlestick/internal/handler/api"
	"candlestick/internal/handler/cli"
	internalrepo "candlestick/internal/repository"
	"candlestick/internal/service/ratelimit"
	"candlestick/internal/service/yahoo"
	"candlestick/internal/usecase"
	"candlestick/pkg/cache"
	pkgch "candlestick/pkg/clickhouse"
	"candlestick/pkg/config"
	xhttp "candlestick/pkg/http"
	pkgkafka "candlestick/pkg/kafka"
	applogger "candlestick/pkg/logger"
	"candlestick/pkg/metrics"
	"candlestick/pkg/postgres"
	"candlestick/pkg/server"
)

const initTimeout = 15 * time.Second

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideStore opens the configured backend and ensures its schema.
func ProvideStore(cfg *config.Config, l *applogger.Logger) (repository.Store, func(), error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	var store repository.Store
	switch cfg.Backend.Type {
	case config.BackendClickHouse:
		client, err := pkgch.NewClient(
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
			pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
			pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		s := internalrepo.NewClickHouseStore(client)
		s.SetLogger(l)
		store = s
	case config.BackendPostgres:
		client, err := postgres.NewClient(ctx, postgres.Config{
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.MaxConns,
			MinConns:        cfg.Postgres.MinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime,
			ConnectTimeout:  cfg.Postgres.ConnectTimeout,
			ApplicationName: "candlestick",
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres client: %w", err)
		}
		s := internalrepo.NewPostgresStore(client)
		s.SetLogger(l)
		store = s
	default:
		store = internalrepo.NewMemoryStore()
	}

	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("%s schema: %w", cfg.Backend.Type, err)
	}
	l.Info("store ready", applogger.String("backend", cfg.Backend.Type))

	cleanup := func() {
		if err := store.Close(); err != nil {
			l.Warn("store close error", applogger.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideCache creates the cache used for bar responses and series locks.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	var svc cache.Service
	switch cfg.Cache.Type {
	case "redis":
		rc, err := cache.NewRedisCache(
			cache.WithRedisHost(cfg.Redis.Host),
			cache.WithRedisPort(cfg.Redis.Port),
			cache.WithRedisPassword(cfg.Redis.Password),
			cache.WithRedisDB(cfg.Redis.DB),
			cache.WithRedisPool(cfg.Redis.PoolSize, 1, 5*time.Second),
			cache.WithRedisPrefix(cfg.Redis.Prefix),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		svc = rc
	default:
		svc = cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MaxSize),
			cache.WithMemoryCleanup(cfg.Cache.CleanupInterval),
		)
	}

	cleanup := func() {
		if err := svc.Close(); err != nil {
			l.Warn("cache close error", applogger.Error(err))
		}
	}
	return svc, cleanup, nil
}

// ProvideProvider creates the Yahoo market data provider.
func ProvideProvider(cfg *config.Config) repository.Provider {
	opts := []yahoo.Option{yahoo.WithBaseURL(cfg.Provider.BaseURL)}
	if cfg.Provider.UserAgent != "" {
		opts = append(opts, yahoo.WithUserAgent(cfg.Provider.UserAgent))
	}
	return yahoo.New(xhttp.NewClient(xhttp.WithTimeout(cfg.Provider.Timeout)), opts...)
}

// ProvidePublisher creates the Kafka event publisher, or nil when Kafka is
// disabled.
func ProvidePublisher(cfg *config.Config, l *applogger.Logger) (repository.EventPublisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.MaxAttempts),
		pkgkafka.WithTimeouts(cfg.Kafka.WriteTimeout, cfg.Kafka.WriteTimeout),
		pkgkafka.WithAutoCreateTopic(cfg.Kafka.AutoCreate),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	l.Info("kafka publisher ready",
		applogger.Strings("brokers", cfg.Kafka.Brokers),
		applogger.String("topic", cfg.Kafka.Topic),
	)

	pub := internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
	cleanup := func() {
		if err := pub.Close(); err != nil {
			l.Warn("kafka close error", applogger.Error(err))
		}
	}
	return pub, cleanup, nil
}

// ProvideMetrics creates a Prometheus metrics recorder on the default registry.
func ProvideMetrics() repository.Metrics {
	return metrics.New(nil)
}

// ProvideNoMetrics is used by one-shot commands that have nothing scraping them.
func ProvideNoMetrics() repository.Metrics {
	return nil
}

func ProvideInstrumentsUseCase(store repository.Store, l *applogger.Logger) *usecase.InstrumentsUseCase {
	uc := usecase.NewInstrumentsUseCase(store, store)
	uc.SetLogger(l)
	return uc
}

func ProvideBarsUseCase(instruments *usecase.InstrumentsUseCase, store repository.Store, c cache.Service, cfg *config.Config, l *applogger.Logger) *usecase.BarsUseCase {
	uc := usecase.NewBarsUseCase(instruments, store, c, cfg.Cache.BarsTTL)
	uc.SetLogger(l)
	return uc
}

func ProvideSyncEngine(store repository.Store, provider repository.Provider, l *applogger.Logger) *usecase.SyncEngine {
	e := usecase.NewSyncEngine(store, provider)
	e.SetLogger(l)
	return e
}

func ProvideBatchUseCase(
	instruments *usecase.InstrumentsUseCase,
	engine *usecase.SyncEngine,
	bars *usecase.BarsUseCase,
	c cache.Service,
	pub repository.EventPublisher,
	m repository.Metrics,
	cfg *config.Config,
	l *applogger.Logger,
) *usecase.BatchUseCase {
	uc := usecase.NewBatchUseCase(instruments, engine, bars, c, cfg.Sync.LockTTL)
	uc.SetLogger(l)
	if pub != nil {
		uc.SetPublisher(pub)
	}
	if m != nil {
		uc.SetMetrics(m)
	}
	return uc
}

// ProvideLimiter creates the per-client limiter for sync endpoints.
func ProvideLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateBurst, cfg.Server.RateLimit)
}

// ProvideHTTPHandler creates the echo handler serving the API.
func ProvideHTTPHandler(
	l *applogger.Logger,
	instruments *usecase.InstrumentsUseCase,
	bars *usecase.BarsUseCase,
	batch *usecase.BatchUseCase,
	store repository.Store,
	limiter *ratelimit.Limiter,
) xhttp.Handler {
	return api.NewInstrumentsEchoHandler(l, instruments, bars, batch, store, limiter)
}

// ProvideApp creates the application server.
func ProvideApp(cfg *config.Config, l *applogger.Logger, handler xhttp.Handler, limiter *ratelimit.Limiter) *server.App {
	app := server.New(cfg, l, handler)
	app.AddJob(func(ctx context.Context) {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				limiter.Sweep(10 * time.Minute)
			}
		}
	})
	return app
}

// ProvideRunner creates the command runner.
func ProvideRunner(instruments *usecase.InstrumentsUseCase, bars *usecase.BarsUseCase, batch *usecase.BatchUseCase, l *applogger.Logger) *cli.Runner {
	r := cli.NewRunner(instruments, bars, batch)
	r.SetLogger(l)
	return r
}
