package di

import (
	"fmt"

	"PolEn/internal/domain/repository"
	"PolEn/internal/handler/api"
	"PolEn/internal/merge"
	internalrepo "PolEn/internal/repository"
	"PolEn/internal/series"
	"PolEn/internal/service/engineapi"
	"PolEn/internal/service/ratelimit"
	"PolEn/internal/service/simkafka"
	"PolEn/internal/service/simws"
	"PolEn/internal/stream"
	"PolEn/internal/usecase"
	"PolEn/pkg/cache"
	pkgch "PolEn/pkg/clickhouse"
	"PolEn/pkg/config"
	phttp "PolEn/pkg/http"
	"PolEn/pkg/logger"
	"PolEn/pkg/metrics"
	"PolEn/pkg/server"
)

// ProvideLogger builds the process logger with the fault journal attached,
// so warn/error events feed the /api/faults banner.
func ProvideLogger(cfg *config.Config, journal *logger.Journal) (*logger.Logger, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	log.AttachJournal(journal)
	return log, nil
}

// ProvideJournal creates the bounded fault journal.
func ProvideJournal(cfg *config.Config) *logger.Journal {
	return logger.NewJournal(cfg.Board.FaultJournalSize)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCache selects the cache backend, or nil when caching is disabled.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemoryCache(), nil
	case "redis":
		return cache.NewRedisCache(
			cache.WithRedisAddr(cfg.Cache.Redis.Addr),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
		)
	case "layered":
		redis, err := cache.NewRedisCache(
			cache.WithRedisAddr(cfg.Cache.Redis.Addr),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
		)
		if err != nil {
			return nil, err
		}
		return cache.NewLayeredCache(redis), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// ProvideEngineService creates the HTTP adapter to the simulation engine.
func ProvideEngineService(cfg *config.Config, cacheSvc cache.Service, log *logger.Logger) *engineapi.Service {
	opts := []engineapi.Option{engineapi.WithTimeout(cfg.Engine.Timeout)}
	if cacheSvc != nil {
		opts = append(opts, engineapi.WithCache(cacheSvc, cfg.Cache.TTL))
	}
	return engineapi.NewService(cfg.Engine.BaseURL, log, opts...)
}

// ProvideHistorySource selects where the historical series comes from: the
// engine's REST API, or a ClickHouse table the engine materializes.
func ProvideHistorySource(cfg *config.Config, engine *engineapi.Service, log *logger.Logger) (repository.HistorySource, func(), error) {
	switch cfg.History.Source {
	case "api":
		return engine, func() {}, nil
	case "clickhouse":
		ch := cfg.History.ClickHouse
		client, err := pkgch.NewClient(
			pkgch.WithHost(ch.Host),
			pkgch.WithPort(ch.Port),
			pkgch.WithDatabase(ch.Database),
			pkgch.WithCredentials(ch.User, ch.Password),
			pkgch.WithTimeouts(ch.DialTimeout, ch.ReadTimeout),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("clickhouse client: %w", err)
		}
		cleanup := func() { client.Close() }
		return internalrepo.NewHistoryClickHouse(client, ch.Table, log), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown history source %q", cfg.History.Source)
	}
}

// ProvideStreamDialer selects the live step transport.
func ProvideStreamDialer(cfg *config.Config, log *logger.Logger) (repository.StreamDialer, error) {
	switch cfg.Stream.Transport {
	case "ws":
		return simws.NewDialer(cfg.Engine.WebSocketURL, log), nil
	case "kafka":
		k := cfg.Stream.Kafka
		return simkafka.NewDialer(simkafka.Config{
			Brokers:      k.Brokers,
			Topic:        k.Topic,
			RequestTopic: k.RequestTopic,
			GroupID:      k.GroupID,
			MinBytes:     k.MinBytes,
			MaxBytes:     k.MaxBytes,
		}, log)
	default:
		return nil, fmt.Errorf("unknown stream transport %q", cfg.Stream.Transport)
	}
}

// ProvideStreamManager creates the session manager.
func ProvideStreamManager(dialer repository.StreamDialer, m repository.Metrics, log *logger.Logger) *stream.Manager {
	return stream.NewManager(dialer, m, log)
}

// ProvideMergeEngine creates the merge engine with board display settings.
func ProvideMergeEngine(cfg *config.Config, m repository.Metrics, log *logger.Logger) *merge.Engine {
	return merge.NewEngine(
		series.NewNormalizer(log, m),
		m,
		merge.WithWindowMonths(cfg.History.WindowMonths),
		merge.WithAxisTicks(cfg.Board.AxisTicks),
		merge.WithSpaghettiCap(cfg.Board.SpaghettiCap),
	)
}

// ProvideBoardController creates the view controller.
func ProvideBoardController(
	engine *engineapi.Service,
	history repository.HistorySource,
	streams *stream.Manager,
	merger *merge.Engine,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.BoardController {
	return usecase.NewBoardController(engine, history, streams, merger, m, log)
}

// ProvideLimiter guards engine-bound operations: a short burst, then one
// request per two seconds.
func ProvideLimiter() *ratelimit.Limiter {
	return ratelimit.NewLimiter(5, 0.5)
}

// ProvideBoardHandler creates the HTTP handler.
func ProvideBoardHandler(
	controller *usecase.BoardController,
	journal *logger.Journal,
	limiter *ratelimit.Limiter,
	log *logger.Logger,
) *api.BoardHandler {
	return api.NewBoardHandler(controller, journal, limiter, log)
}

// ProvideHTTPServer creates the Echo server.
func ProvideHTTPServer(cfg *config.Config, handler *api.BoardHandler) *phttp.Server {
	return phttp.NewServer(handler,
		phttp.WithPort(cfg.Server.Port),
		phttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		phttp.WithCORS(cfg.Environment != "production"),
	)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *logger.Logger,
	srv *phttp.Server,
	controller *usecase.BoardController,
	streams *stream.Manager,
	cacheSvc cache.Service,
) *server.App {
	return server.NewApp(cfg, log, srv, controller, streams, cacheSvc)
}
