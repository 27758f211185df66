package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/MrSnakeDoc/unilend/internal/auth"
	"github.com/MrSnakeDoc/unilend/internal/config"
	"github.com/MrSnakeDoc/unilend/internal/docstore"
	"github.com/MrSnakeDoc/unilend/internal/docstore/memory"
	"github.com/MrSnakeDoc/unilend/internal/httpserver"
	"github.com/MrSnakeDoc/unilend/internal/httpserver/deps"
	"github.com/MrSnakeDoc/unilend/internal/livelist"
	"github.com/MrSnakeDoc/unilend/internal/logger"
	"github.com/MrSnakeDoc/unilend/internal/media"
	"github.com/MrSnakeDoc/unilend/internal/redis"
	"github.com/MrSnakeDoc/unilend/internal/scheduler"
	"github.com/MrSnakeDoc/unilend/internal/service"
	redisstore "github.com/MrSnakeDoc/unilend/internal/store/redis"
	"github.com/MrSnakeDoc/unilend/internal/utils"
	"github.com/MrSnakeDoc/unilend/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	views       *service.ViewRegistry
	reloader    *scheduler.CatalogReloader
	reaper      *scheduler.ViewReaper
}

// backend is the document store plus what the chosen backend brings along.
type backend struct {
	store    docstore.Store
	sessions auth.SessionStore
	cache    scheduler.CatalogCache // nil for memory
	pinger   deps.Pinger            // nil for memory
	purger   scheduler.SessionPurger
	client   *goredis.Client
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	b, err := openBackend(cfg, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to open %s store: %v", cfg.StoreBackend, err)
		os.Exit(1)
	}

	catalog := service.NewCatalog()

	// Replicas without a catalog file serve whatever another replica cached.
	if b.cache != nil {
		syncer := scheduler.NewCatalogSyncer(b.cache, catalog, loggerClient)
		if err := syncer.Sync(context.Background()); err != nil {
			loggerClient.Warn("failed to sync catalog from redis on startup, using defaults",
				logger.Error(err))
		}
	}

	var reloader *scheduler.CatalogReloader
	var reloadTrigger chan struct{}
	if cfg.CatalogFile != "" {
		reloadTrigger = make(chan struct{}, 1)
		reloader = scheduler.NewCatalogReloader(
			cfg.CatalogFile,
			catalog,
			b.cache,
			logger.Named(loggerClient, "catalog"),
			cfg.CatalogReloadInterval,
			reloadTrigger,
		)
	} else {
		loggerClient.Info("catalog file not configured, serving built-in options")
	}

	uploader := media.NewUploader(media.Config{
		URL:          cfg.UploadURL,
		UploadPreset: cfg.UploadPreset,
		Timeout:      cfg.UploadTimeout,
		MaxBytes:     cfg.MaxUploadBytes,
	}, logger.Named(loggerClient, "media"))
	if !uploader.Enabled() {
		loggerClient.Warn("image upload not configured, listings are created without covers")
	}

	views := service.NewViewRegistry(b.store, service.ViewConfig{
		MaxPerOwner: cfg.MaxViewsPerUser,
		ListOptions: []livelist.Option{
			livelist.WithRollback(cfg.OptimisticRollback),
			livelist.WithWriteTimeout(cfg.WriteTimeout),
			livelist.WithLogger(logger.Named(loggerClient, "livelist")),
		},
	}, logger.Named(loggerClient, "views"))

	users := service.NewUserService(b.store, b.sessions, service.UserConfig{
		SessionTTL: cfg.SessionTTL,
		ResetTTL:   cfg.ResetTokenTTL,
	}, logger.Named(loggerClient, "users"))

	listings := service.NewListingService(b.store, uploader, catalog, logger.Named(loggerClient, "listings"))

	reaper := scheduler.NewViewReaper(views, b.purger, loggerClient, cfg.ViewReapInterval, cfg.ViewIdleTimeout)

	d := deps.Deps{
		Logger:         loggerClient,
		StartTime:      time.Now(),
		Version:        version.Version,
		Commit:         version.Commit,
		BuildDate:      version.BuildDate,
		GoVersion:      version.GoVersion,
		TimeNow:        time.Now,
		AllowedCIDRS:   cfg.AllowedCIDRS,
		TrustProxy:     cfg.TrustProxy,
		AuthRateLimit:  cfg.AuthRateLimit,
		AuthRateBurst:  cfg.AuthRateBurst,
		StoreBackend:   cfg.StoreBackend,
		Store:          b.pinger,
		Listings:       listings,
		Users:          users,
		Views:          views,
		Catalog:        catalog,
		CatalogFile:    cfg.CatalogFile,
		ImageUploads:   uploader.Enabled(),
		MaxUploadBytes: cfg.MaxUploadBytes,
		SSEHeartbeat:   cfg.SSEHeartbeat,
		ReloadTrigger:  reloadTrigger,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: b.client,
		views:       views,
		reloader:    reloader,
		reaper:      reaper,
	}
}

func openBackend(cfg *config.Config, log logger.Logger) (backend, error) {
	if cfg.StoreBackend == config.BackendMemory {
		log.Warn("using the in-memory store, data is lost on restart")
		sessions := auth.NewMemorySessions()
		return backend{store: memory.New(), sessions: sessions, purger: sessions}, nil
	}

	// Initialize Redis early - fail fast if unavailable
	client, err := redis.Connect(context.Background(), redis.Options{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		DB:             cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, log)
	if err != nil {
		return backend{}, err
	}

	store := redisstore.NewStore(client, logger.Named(log, "store"))
	return backend{
		store:    store,
		sessions: store,
		cache:    store,
		pinger:   store,
		client:   client,
	}, nil
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting unilend v%s on %s (%s store)", version.Version, a.cfg.ListenPort, a.cfg.StoreBackend)
	a.logger.Infof("unilend %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load the catalog before serving so uploads validate against it.
	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start catalog reloader: %w", err)
		}
		a.logger.Info("catalog reloader started",
			logger.Duration("interval", a.cfg.CatalogReloadInterval))
	}

	a.reaper.Start(ctx)
	a.logger.Info("view reaper started",
		logger.Duration("interval", a.cfg.ViewReapInterval),
		logger.Duration("idle", a.cfg.ViewIdleTimeout))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.Start(); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("⏳ Shutting down gracefully...")
		return a.shutdown()
	})

	return g.Wait()
}

// shutdown stops schedulers, ends view streams so the server can drain,
// then stops the server and closes redis.
func (a *App) shutdown() error {
	if a.reloader != nil {
		a.reloader.Stop()
	}
	a.reaper.Stop()

	a.views.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		utils.MustClose(a.redisClient, "redis", a.logger)
		a.logger.Info("✅ Redis closed")
	}

	a.logger.Info("✅ unilend stopped cleanly")
	return nil
}
