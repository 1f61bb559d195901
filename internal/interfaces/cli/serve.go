package cli

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/turtacn/mapsync/internal/application/fetcher"
	"github.com/turtacn/mapsync/internal/application/mapview"
	"github.com/turtacn/mapsync/internal/config"
	"github.com/turtacn/mapsync/internal/infrastructure/database/redis"
	"github.com/turtacn/mapsync/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/mapsync/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/mapsync/internal/infrastructure/spatial"
	httpserver "github.com/turtacn/mapsync/internal/interfaces/http"
	"github.com/turtacn/mapsync/internal/interfaces/http/handlers"
	"github.com/turtacn/mapsync/internal/interfaces/http/middleware"
	"github.com/turtacn/mapsync/pkg/client"
)

const tracerName = "github.com/turtacn/mapsync"

// ServeOptions holds serve flags.
type ServeOptions struct {
	Addr        string
	WatchConfig bool
}

func newServeCmd() *cobra.Command {
	opts := &ServeOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Host the map engine over HTTP",
		Long: "serve starts the HTTP host: camera and gesture endpoints, the visible-set\n" +
			"stream, health checks and the Prometheus scrape endpoint.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cliCtx, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.host and server.port)")
	cmd.Flags().BoolVar(&opts.WatchConfig, "watch-config", true, "reload the log level when the config file changes")
	return cmd
}

func runServe(ctx context.Context, cliCtx *CLIContext, opts *ServeOptions) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := cliCtx.Config
	logger := cliCtx.Logger

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if opts.WatchConfig && cliCtx.ConfigPath != "" {
		watchLogLevel(cliCtx.ConfigPath, logger)
	}

	addr := cfg.Server.Addr()
	if opts.Addr != "" {
		addr = opts.Addr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	logger.Info("starting mapsync",
		logging.String("version", Version),
		logging.String("addr", ln.Addr().String()),
		logging.String("session_id", a.engine.SessionID()),
	)
	return a.serve(ctx, ln)
}

// watchLogLevel applies log.level from every valid rewrite of path.
func watchLogLevel(path string, logger logging.Logger) {
	err := config.Watch(path, func(c *config.Config) {
		if logging.SetLevel(logger, c.Log.Level) {
			logger.Info("log level reloaded", logging.String("level", c.Log.Level))
		}
	}, func(err error) {
		logger.Warn("config reload rejected", logging.Err(err))
	})
	if err != nil {
		logger.Warn("config watch disabled", logging.String("path", path), logging.Err(err))
	}
}

// app is the fully wired HTTP host.
type app struct {
	logger   logging.Logger
	engine   *mapview.Engine
	server   *httpserver.Server
	router   *gin.Engine
	closers  []func() error
	producer *kafka.Producer
}

// newApp wires config into the engine and its optional Redis cache, Kafka
// sink and metrics.  Disabled components are simply left out.
func newApp(cfg *config.Config, logger logging.Logger) (*app, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	a := &app{logger: logger}

	var (
		em             *prometheus.EngineMetrics
		metricsHandler http.Handler
	)
	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableGoMetrics:      true,
			EnableProcessMetrics: true,
		}, logger.Named("metrics"))
		if err != nil {
			return nil, err
		}
		em = prometheus.NewEngineMetrics(collector)
		metricsHandler = collector.Handler()
	}

	svc, err := newSpatialService(cfg, logger)
	if err != nil {
		return nil, err
	}

	var checkers []handlers.HealthChecker
	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(&redis.RedisConfig{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		}, logger.Named("redis"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rc.Close)
		checkers = append(checkers, handlers.CheckerFunc{ComponentName: "redis", Fn: rc.Ping})

		cache := redis.NewRedisCache(rc, logger.Named("cache"),
			redis.WithPrefix(cfg.Redis.KeyPrefix),
			redis.WithDefaultTTL(cfg.Redis.TTL),
		)
		cacheOpts := []spatial.Option{
			spatial.WithTTL(cfg.Redis.TTL),
			spatial.WithLogger(logger.Named("spatial")),
		}
		if em != nil {
			cacheOpts = append(cacheOpts, spatial.WithMetrics(em))
		}
		cached, err := spatial.NewCachedService(svc, cache, cacheOpts...)
		if err != nil {
			a.close()
			return nil, err
		}
		svc = cached
	}

	engineOpts := []mapview.Option{
		mapview.WithLogger(logger.Named("engine")),
		mapview.WithTracer(otel.Tracer(tracerName)),
	}
	if em != nil {
		engineOpts = append(engineOpts, mapview.WithMetrics(em))
	}
	if cfg.Kafka.Enabled {
		p, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.Kafka.Brokers,
			RequiredAcks: cfg.Kafka.RequiredAcks,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		}, logger.Named("kafka"))
		if err != nil {
			a.close()
			return nil, err
		}
		a.producer = p
		engineOpts = append(engineOpts, mapview.WithEventSink(
			kafka.NewVisibleSetPublisher(p, cfg.Kafka.Topic, logger.Named("events"))))
	}

	engine, err := mapview.New(engineConfig(cfg), svc, engineOpts...)
	if err != nil {
		a.close()
		return nil, err
	}
	a.engine = engine

	gin.SetMode(cfg.Server.Mode)
	routerCfg := httpserver.RouterConfig{
		MapHandler:     handlers.NewMapHandler(engine, logger.Named("http")),
		HealthHandler:  handlers.NewHealthHandler(Version, checkers...),
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
		Logging:        middleware.DefaultLoggingConfig(),
		Logger:         logger.Named("http"),
	}
	if em != nil {
		routerCfg.HTTPMetrics = em
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.Server.AllowedOrigins
		routerCfg.CORS = &cors
	}
	a.router = httpserver.NewRouter(routerCfg)
	a.server = httpserver.NewServer(cfg.Server, a.router, logger.Named("server"))
	return a, nil
}

// newSpatialService builds the SDK client for the remote spatial service.
func newSpatialService(cfg *config.Config, logger logging.Logger) (fetcher.Service, error) {
	c, err := client.NewClient(cfg.Spatial.BaseURL, cfg.Spatial.APIKey,
		client.WithTimeout(cfg.Spatial.Timeout),
		client.WithRetryMax(cfg.Spatial.RetryMax),
		client.WithRetryWait(cfg.Spatial.RetryWait, 10*cfg.Spatial.RetryWait),
		client.WithUserAgent(cfg.Spatial.UserAgent),
		client.WithLogger(clientLogger{logger.Named("spatial-client")}),
	)
	if err != nil {
		return nil, err
	}
	return c.Spatial(), nil
}

// engineConfig maps the file layout onto the engine's tunables.
func engineConfig(cfg *config.Config) mapview.Config {
	return mapview.Config{
		Fetch: fetcher.Config{
			Debounce:     cfg.Fetch.Debounce,
			Timeout:      cfg.Fetch.Timeout,
			Status:       cfg.Fetch.Status,
			ClusterLimit: cfg.Fetch.ClusterLimit,
			ResultLimit:  cfg.Fetch.ResultLimit,
			Threshold:    cfg.Fetch.Threshold,
		},
		EchoWindow:        cfg.Viewport.EchoWindow,
		RetryDelay:        cfg.Sync.RetryDelay,
		KeepAliveInterval: cfg.Sync.KeepAliveInterval,
		Locale:            cfg.Render.Locale,
	}
}

// serve blocks until ctx is done or the listener fails, then drains.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- a.server.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutdown signal received")
	if err := a.server.Stop(context.Background()); err != nil {
		a.logger.Error("HTTP server shutdown error", logging.Err(err))
		return err
	}
	return <-errCh
}

// close releases the engine first so no fetch result reaches a closed sink.
func (a *app) close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("kafka producer close failed", logging.Err(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", logging.Err(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}

// clientLogger adapts logging.Logger to the SDK's printf-style Logger.
type clientLogger struct{ l logging.Logger }

func (c clientLogger) Debugf(format string, args ...interface{}) {
	c.l.Debug(fmt.Sprintf(format, args...))
}

func (c clientLogger) Infof(format string, args ...interface{}) {
	c.l.Info(fmt.Sprintf(format, args...))
}

func (c clientLogger) Errorf(format string, args ...interface{}) {
	c.l.Error(fmt.Sprintf(format, args...))
}

//Personal.AI order the ending
