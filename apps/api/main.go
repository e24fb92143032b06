package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	displayshandler "github.com/zenGate-Global/palmyra-directory/domains/displays/be/handler"
	displaysservice "github.com/zenGate-Global/palmyra-directory/domains/displays/be/service"
	favoriteshandler "github.com/zenGate-Global/palmyra-directory/domains/favorites/be/handler"
	favoritesservice "github.com/zenGate-Global/palmyra-directory/domains/favorites/be/service"
	lookuphandler "github.com/zenGate-Global/palmyra-directory/domains/lookup/be/handler"
	lookupservice "github.com/zenGate-Global/palmyra-directory/domains/lookup/be/service"
	personalhandler "github.com/zenGate-Global/palmyra-directory/domains/personal/be/handler"
	personalrepo "github.com/zenGate-Global/palmyra-directory/domains/personal/be/repo"
	personalservice "github.com/zenGate-Global/palmyra-directory/domains/personal/be/service"
	phonebookshandler "github.com/zenGate-Global/palmyra-directory/domains/phonebooks/be/handler"
	phonebooksservice "github.com/zenGate-Global/palmyra-directory/domains/phonebooks/be/service"
	profileshandler "github.com/zenGate-Global/palmyra-directory/domains/profiles/be/handler"
	profilesservice "github.com/zenGate-Global/palmyra-directory/domains/profiles/be/service"
	sourceshandler "github.com/zenGate-Global/palmyra-directory/domains/sources/be/handler"
	sourcesservice "github.com/zenGate-Global/palmyra-directory/domains/sources/be/service"
	tenantshandler "github.com/zenGate-Global/palmyra-directory/domains/tenants/be/handler"
	tenantsservice "github.com/zenGate-Global/palmyra-directory/domains/tenants/be/service"
	"github.com/zenGate-Global/palmyra-directory/platform/go/apperr"
	"github.com/zenGate-Global/palmyra-directory/platform/go/authclient"
	"github.com/zenGate-Global/palmyra-directory/platform/go/events"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpapi"
	"github.com/zenGate-Global/palmyra-directory/platform/go/httpclient"
	platformlogging "github.com/zenGate-Global/palmyra-directory/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/palmyra-directory/platform/go/middleware"
	"github.com/zenGate-Global/palmyra-directory/platform/go/persistence"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources"
	"github.com/zenGate-Global/palmyra-directory/platform/go/sources/registry"
	tenantmiddleware "github.com/zenGate-Global/palmyra-directory/platform/go/tenant/middleware"
	"github.com/zenGate-Global/palmyra-directory/platform/go/workerpool"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"9489"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ServiceVersion  string        `env:"SERVICE_VERSION"`
	MigrateOnStart  bool          `env:"MIGRATE_ON_START" envDefault:"false"`

	// Database reads DATABASE_URL and the DB_* pool settings.
	Database persistence.PoolConfig

	AuthProvider            string `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase | hmac | dev
	AuthHMACSecret          string `env:"AUTH_HMAC_SECRET"`
	FirebaseCredentialsFile string `env:"FIREBASE_CREDENTIALS_FILE"`
	MasterTenantUUID        string `env:"MASTER_TENANT_UUID"`

	KafkaBrokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaInboundTopic  string   `env:"KAFKA_INBOUND_TOPIC" envDefault:"directory.inbound"`
	KafkaOutboundTopic string   `env:"KAFKA_OUTBOUND_TOPIC" envDefault:"directory.outbound"`
	KafkaGroupID       string   `env:"KAFKA_GROUP_ID" envDefault:"palmyra-directory"`
	EventQueueSize     int      `env:"EVENT_QUEUE_SIZE" envDefault:"256"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	WorkerPoolSize       int           `env:"WORKER_POOL_SIZE" envDefault:"10"`
	LookupDefaultTimeout time.Duration `env:"LOOKUP_DEFAULT_TIMEOUT" envDefault:"2s"`
	OutboundHTTPRetries  int           `env:"OUTBOUND_HTTP_RETRIES" envDefault:"1"`
	OutboundHTTPTimeout  time.Duration `env:"OUTBOUND_HTTP_TIMEOUT" envDefault:"10s"`
}

type stores struct {
	displays   *persistence.DisplayStore
	sources    *persistence.SourceStore
	profiles   *persistence.ProfileStore
	tenants    *persistence.TenantStore
	personal   *persistence.ContactStore
	phonebooks *persistence.PhonebookStore
	entries    *persistence.ContactStore
	favorites  *persistence.FavoriteStore
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.ConnString == "" {
		log.Fatalf("load config: DATABASE_URL is required")
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Version:   cfg.ServiceVersion,
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	masterTenant := uuid.Nil
	if cfg.MasterTenantUUID != "" {
		if masterTenant, err = uuid.Parse(cfg.MasterTenantUUID); err != nil {
			logger.Fatal("invalid MASTER_TENANT_UUID", zap.Error(err))
		}
	}

	pool, err := persistence.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if cfg.MigrateOnStart {
		applied, err := persistence.Migrate(ctx, pool)
		if err != nil {
			logger.Fatal("apply migrations", zap.Error(err))
		}
		logger.Info("migrations applied", zap.Int64s("versions", applied))
	}

	st := mustStores(ctx, pool, logger)

	httpClients := httpclient.NewPair(httpclient.Config{
		Timeout:      cfg.OutboundHTTPTimeout,
		RetryMax:     cfg.OutboundHTTPRetries,
		RetryWaitMin: 50 * time.Millisecond,
		RetryWaitMax: 500 * time.Millisecond,
	}, logger)
	defer httpClients.Close()

	var tokenCache authclient.Cache
	if cfg.RedisAddr != "" {
		redisCache, err := authclient.NewRedisCache(ctx, authclient.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.Fatal("init redis token cache", zap.Error(err))
		}
		defer redisCache.Close()
		tokenCache = redisCache
	}
	authClient := authclient.New(httpClients, tokenCache, logger)

	reg := registry.New(registry.Deps{
		Personal:  st.personal,
		Phonebook: st.entries,
		HTTP:      httpClients,
		Auth:      authClient,
		Logger:    logger,
	})
	defer reg.Close()

	rows, err := st.sources.ListAll(ctx)
	if err != nil {
		logger.Fatal("list sources", zap.Error(err))
	}
	defs := make([]sources.Definition, 0, len(rows))
	for _, row := range rows {
		defs = append(defs, row.Definition())
	}
	reg.LoadAll(defs)

	publisher, closePublisher := buildPublisher(cfg, logger)
	defer closePublisher()

	displayHTTPHandler := displayshandler.New(displaysservice.New(st.displays), logger)
	profileHTTPHandler := profileshandler.New(profilesservice.New(st.profiles, st.displays, st.sources), logger)
	sourceHTTPHandler := sourceshandler.New(sourcesservice.New(st.sources, reg, st.phonebooks, logger), logger)

	tenantService := tenantsservice.New(st.tenants, logger)
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)

	personalService := personalservice.New(personalrepo.NewPostgresRepository(st.personal, st.favorites), logger)
	personalHTTPHandler := personalhandler.New(personalService, logger)

	favoriteHTTPHandler := favoriteshandler.New(favoritesservice.New(st.favorites, st.sources, publisher, logger), logger)
	phonebookHTTPHandler := phonebookshandler.New(phonebooksservice.New(st.phonebooks, st.entries), logger)

	lookupService := lookupservice.New(lookupservice.Deps{
		Profiles:       st.profiles,
		Displays:       st.displays,
		Favorites:      st.favorites,
		Registry:       reg,
		Pool:           workerpool.New(cfg.WorkerPoolSize),
		DefaultTimeout: cfg.LookupDefaultTimeout,
		Logger:         logger,
	})
	lookupHTTPHandler := lookuphandler.New(lookupService, logger)

	dispatcher := events.NewDispatcher()
	dispatcher.Handle(events.UserDeleted, personalService.HandleUserDeleted)
	dispatcher.Handle(events.TenantLocalizationEdited, tenantService.HandleLocalizationEdited)
	stopConsumer := startConsumer(ctx, cfg, dispatcher, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if masterTenant == uuid.Nil {
			httpapi.WriteProblem(w, r, logger, "readyz", apperr.ErrMasterTenantNotInitiated)
			return
		}
		if err := pool.Ping(r.Context()); err != nil {
			logger.Warn("database not ready", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Handle("/metrics", promhttp.Handler())

	apiRouter := chi.NewRouter()
	apiRouter.Use(buildAuthMiddleware(ctx, cfg, logger))
	apiRouter.Use(tenantmiddleware.WithScope(logger))
	apiRouter.Use(platformmiddleware.RequestTrace)

	displayHTTPHandler.Routes(apiRouter)
	profileHTTPHandler.Routes(apiRouter)
	sourceHTTPHandler.Routes(apiRouter)
	tenantHTTPHandler.Routes(apiRouter)
	personalHTTPHandler.Routes(apiRouter)
	favoriteHTTPHandler.Routes(apiRouter)
	phonebookHTTPHandler.Routes(apiRouter)
	lookupHTTPHandler.Routes(apiRouter)

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	stopConsumer()
}

func mustStores(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) stores {
	var (
		st  stores
		err error
	)
	if st.displays, err = persistence.NewDisplayStore(ctx, pool); err != nil {
		logger.Fatal("init display store", zap.Error(err))
	}
	if st.sources, err = persistence.NewSourceStore(ctx, pool); err != nil {
		logger.Fatal("init source store", zap.Error(err))
	}
	if st.profiles, err = persistence.NewProfileStore(ctx, pool); err != nil {
		logger.Fatal("init profile store", zap.Error(err))
	}
	if st.tenants, err = persistence.NewTenantStore(ctx, pool); err != nil {
		logger.Fatal("init tenant store", zap.Error(err))
	}
	if st.personal, err = persistence.NewPersonalContactStore(ctx, pool); err != nil {
		logger.Fatal("init personal store", zap.Error(err))
	}
	if st.phonebooks, err = persistence.NewPhonebookStore(ctx, pool); err != nil {
		logger.Fatal("init phonebook store", zap.Error(err))
	}
	if st.entries, err = persistence.NewPhonebookContactStore(ctx, pool); err != nil {
		logger.Fatal("init phonebook contact store", zap.Error(err))
	}
	if st.favorites, err = persistence.NewFavoriteStore(ctx, pool); err != nil {
		logger.Fatal("init favorite store", zap.Error(err))
	}
	return st
}

func kafkaConfig(cfg config) events.KafkaConfig {
	return events.KafkaConfig{
		Brokers:       cfg.KafkaBrokers,
		InboundTopic:  cfg.KafkaInboundTopic,
		OutboundTopic: cfg.KafkaOutboundTopic,
		GroupID:       cfg.KafkaGroupID,
		OriginUUID:    cfg.MasterTenantUUID,
	}
}

// buildPublisher returns the outbound event publisher and its teardown.
// Without brokers, events are dropped.
func buildPublisher(cfg config, logger *zap.Logger) (events.Publisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set, outbound events are dropped")
		return events.NopPublisher{}, func() {}
	}
	kafkaPublisher, err := events.NewKafkaPublisher(kafkaConfig(cfg))
	if err != nil {
		logger.Fatal("init kafka publisher", zap.Error(err))
	}
	async := events.NewAsyncPublisher(kafkaPublisher, cfg.EventQueueSize, logger)
	return async, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := async.Close(ctx); err != nil {
			logger.Warn("drain event queue", zap.Error(err))
		}
		if err := kafkaPublisher.Close(); err != nil {
			logger.Warn("close kafka publisher", zap.Error(err))
		}
	}
}

// startConsumer runs the inbound event loop and returns its stop func.
func startConsumer(ctx context.Context, cfg config, dispatcher *events.Dispatcher, logger *zap.Logger) func() {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Warn("KAFKA_BROKERS not set, inbound events are not consumed")
		return func() {}
	}
	consumer, err := events.NewConsumer(kafkaConfig(cfg), dispatcher, logger)
	if err != nil {
		logger.Fatal("init kafka consumer", zap.Error(err))
	}
	consumer.Start(ctx)
	return func() {
		if err := consumer.Stop(); err != nil {
			logger.Warn("stop event consumer", zap.Error(err))
		}
	}
}
