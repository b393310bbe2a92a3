package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/peekdeck/peekdeck/internal/browser"
	"github.com/peekdeck/peekdeck/internal/capture"
	"github.com/peekdeck/peekdeck/internal/config"
	"github.com/peekdeck/peekdeck/internal/httpserver"
	"github.com/peekdeck/peekdeck/internal/httpserver/deps"
	"github.com/peekdeck/peekdeck/internal/index"
	"github.com/peekdeck/peekdeck/internal/lifecycle"
	"github.com/peekdeck/peekdeck/internal/logger"
	"github.com/peekdeck/peekdeck/internal/picker"
	"github.com/peekdeck/peekdeck/internal/redis"
	"github.com/peekdeck/peekdeck/internal/scheduler"
	"github.com/peekdeck/peekdeck/internal/secrets"
	redisstore "github.com/peekdeck/peekdeck/internal/store/redis"
	"github.com/peekdeck/peekdeck/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	redisClient *goredis.Client
	engine      *browser.Engine
	manager     *lifecycle.Manager
	pickers     *picker.Service
	reloader    *scheduler.SeedReloader
	gc          *scheduler.PartitionGC
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)

	// Initialize Redis early - fail fast if unavailable
	loggerClient.Infof("Connecting to Redis at %s", cfg.RedisAddr)
	redisClient, err := redis.New(redis.ConnectOptions{
		Addr:           cfg.RedisAddr,
		User:           cfg.RedisUser,
		Password:       cfg.RedisPassword,
		RedisDB:        cfg.RedisDB,
		DialTimeout:    cfg.RedisDT,
		ReadTimeout:    cfg.RedisRT,
		WriteTimeout:   cfg.RedisWT,
		PoolSize:       cfg.RedisPoolSize,
		ConnectTimeout: cfg.RedisConnectTimeout,
		RetryInterval:  cfg.RedisRetryInterval,
		MaxWait:        cfg.RedisMaxWait,
		PingTimeout:    cfg.RedisPingTimeout,
		WarnThreshold:  cfg.RedisWarnThreshold,
	}, loggerClient)
	if err != nil {
		loggerClient.Errorf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	loggerClient.Info("Redis initialized successfully")

	store := redisstore.NewStore(redisClient)
	memIndex := index.NewMemoryIndex()

	// Secret store: key material lives next to the browser profiles.
	secretStore, err := secrets.Open(cfg.DataDir)
	if err != nil {
		loggerClient.Errorf("Failed to open secret store: %v", err)
		os.Exit(1)
	}

	engine := browser.New(browser.Options{
		ExecPath:     cfg.ChromeExecPath,
		Headless:     cfg.ChromeHeadless,
		DataDir:      cfg.DataDir,
		WindowWidth:  cfg.WindowWidth,
		WindowHeight: cfg.WindowHeight,
	}, loggerClient)

	pageFactory := func(ctx context.Context, partition string) (capture.Page, error) {
		tabCtx, cancel, err := engine.Page(ctx, partition)
		if err != nil {
			return nil, err
		}
		return capture.NewChromePage(tabCtx, cancel, capture.PageOptions{
			ReadyCeiling:   cfg.CaptureReadyCeiling,
			KeystrokeDelay: cfg.CaptureKeystrokeWait,
		}), nil
	}
	controller := capture.NewController(pageFactory, loggerClient, capture.Tunables{
		SettleDelay: cfg.CaptureSettleDelay,
		PassTimeout: cfg.CapturePassTimeout,
	})

	manager := lifecycle.NewManager(store, controller, secretStore, engine, memIndex, loggerClient)
	pickers := picker.NewService(engine, loggerClient)

	// Initialize seed file reloader (if a seed file is configured)
	var reloader *scheduler.SeedReloader
	var reloadTrigger chan struct{}
	if cfg.SeedFile != "" {
		loggerClient.Info("seed file configured, initializing reloader",
			logger.String("file", cfg.SeedFile))
		reloadTrigger = make(chan struct{}, 1)
		reloader = scheduler.NewSeedReloader(
			cfg.SeedFile,
			manager,
			loggerClient,
			cfg.ReloadInterval,
			reloadTrigger,
		)
	} else {
		loggerClient.Info("seed file not configured, widgets come from the API only")
	}

	// Initialize partition garbage collector
	gc := scheduler.NewPartitionGC(engine, manager, loggerClient, cfg.GCInterval)

	// Dependencies passed to routes (extend as needed).
	d := deps.Deps{
		Logger:              loggerClient,
		StartTime:           time.Now(),
		Version:             version.Version,
		Commit:              version.Commit,
		BuildDate:           version.BuildDate,
		GoVersion:           version.GoVersion,
		AllowedHosts:        cfg.AllowedHosts,
		AllowedCIDRS:        cfg.AllowedCIDRS,
		TrustProxy:          cfg.TrustProxy,
		RedisClient:         redisClient,
		MemoryIndex:         memIndex,
		Lifecycle:           manager,
		Pickers:             pickers,
		SeedFile:            cfg.SeedFile,
		ReloadTrigger:       reloadTrigger,
		PickerRateBurst:     cfg.PickerRateBurst,
		PickerRatePerMinute: cfg.PickerRatePerMinute,
	}

	server := httpserver.New(cfg, loggerClient, d)

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      server,
		redisClient: redisClient,
		engine:      engine,
		manager:     manager,
		pickers:     pickers,
		reloader:    reloader,
		gc:          gc,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting Peekdeck v%s on %s", version.Version, a.cfg.ListenPort)
	a.logger.Infof("Peekdeck %s (commit=%s, built=%s, go=%s)",
		version.Version, version.Commit, version.BuildDate, version.GoVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the widget lifecycle (timers + initial captures)
	if err := a.manager.Start(ctx); err != nil {
		return fmt.Errorf("failed to start widget lifecycle: %w", err)
	}

	// Start seed reloader (if enabled)
	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start seed reloader: %w", err)
		}
		a.logger.Info("seed reloader started",
			logger.Duration("interval", a.cfg.ReloadInterval))
	}

	// Start partition garbage collector
	if err := a.gc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start partition collector: %w", err)
	}
	a.logger.Info("partition collector started",
		logger.Duration("interval", a.cfg.GCInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	if a.reloader != nil {
		a.reloader.Stop()
	}
	a.gc.Stop()
	a.pickers.Close()
	a.manager.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}

	a.engine.Close()

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warnf("failed to close redis: %v", err)
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ Peekdeck stopped cleanly")
	return nil
}
