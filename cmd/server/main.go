package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/farert/farert-companion/internal/codec"
	"github.com/farert/farert-companion/internal/config"
	"github.com/farert/farert-companion/internal/database"
	"github.com/farert/farert-companion/internal/engine"
	"github.com/farert/farert-companion/internal/engine/script"
	"github.com/farert/farert-companion/internal/handlers"
	"github.com/farert/farert-companion/internal/middleware"
	"github.com/farert/farert-companion/internal/offline"
	"github.com/farert/farert-companion/internal/services"
	"github.com/farert/farert-companion/internal/share"
	"github.com/farert/farert-companion/internal/store"
	"github.com/farert/farert-companion/internal/version"
	"github.com/farert/farert-companion/pkg/jwt"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Farert companion service")
	logger.WithFields(logrus.Fields{
		"version":    version.Version,
		"build_time": version.BuildTime,
		"git_sha":    version.GitSHA,
	}).Info("Build information")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Route engine
	newRoute, err := newRouteFactory(cfg.Engine)
	if err != nil {
		logger.Fatalf("Failed to load route catalog: %v", err)
	}

	// Durable store
	var (
		db           database.DB
		backend      store.Backend
		cacheStorage offline.Storage
		profileRepo  services.ProfileRepository
		rateLimit    *services.RateLimitService
		pinger       handlers.Pinger
	)
	if cfg.Database.Driver == config.DriverMemory {
		logger.Warn("Using in-memory store: state is lost on restart")
		backend = store.NewMemoryBackend()
		cacheStorage = offline.NewMemoryStorage()
	} else {
		logger.WithField("driver", cfg.Database.Driver).Info("Connecting to database...")
		db, err = database.NewConnection(cfg.Database)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		logger.Info("Database connection established")

		backend = database.NewStateRepository(db)
		cacheStorage = database.NewCacheRepository(db)
		profileRepo = database.NewProfileRepository(db)
		rateLimit = services.NewRateLimitService(db, services.RateLimitConfig{
			MaxIPRequests: cfg.RateLimit.MaxProfilesPerIP,
			IPWindow:      cfg.RateLimit.Window,
		})
		pinger = db
	}

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.ProfileTokenExpiry)
	routeCodec := codec.New(newRoute, logger)
	shareBuilder := share.NewBuilder(routeCodec)
	profileService := services.NewProfileService(backend, profileRepo, newRoute, jwtService, logger).
		WithStoreCache(services.StoreCacheConfig{
			MaxLoaded: cfg.Profiles.MaxLoadedStores,
			IdleTTL:   cfg.Profiles.StoreIdleTTL,
		})

	// Offline asset cache
	var (
		agent    *offline.Agent
		origin   *url.URL
		cronJobs services.CronJobs
	)
	if cfg.Offline.Origin != "" {
		origin, err = cfg.Offline.OriginURL()
		if err != nil {
			logger.Fatalf("Invalid offline origin: %v", err)
		}
	}
	if cfg.Offline.Enabled {
		agent, err = newAgent(cfg.Offline, origin, cacheStorage, logger)
		if err != nil {
			logger.Fatalf("Failed to create offline cache agent: %v", err)
		}
		installAndActivate(agent, cfg.Offline.FetchTimeout, logger)

		cronJobs.Sweeper = agent
		cronJobs.SweepSchedule = cfg.Offline.SweepSchedule
	}
	if rateLimit != nil {
		cronJobs.Cleaner = rateLimit
		cronJobs.CleanupSchedule = cfg.RateLimit.CleanupSchedule
	}
	if cfg.Profiles.StoreIdleTTL > 0 {
		cronJobs.Evictor = profileService
		cronJobs.EvictSchedule = cfg.Profiles.EvictSchedule
	}

	// Background jobs
	cronService := services.NewCronService(cronJobs, logger)
	if err := cronService.Start(); err != nil {
		logger.Fatalf("Failed to start cron service: %v", err)
	}

	// Initialize Gin router
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	handlers.RegisterRoutes(router, handlers.Handlers{
		Health:  handlers.NewHealthHandler(pinger, agent, cronService),
		Profile: handlers.NewProfileHandler(profileService, rateLimit, logger),
		State:   handlers.NewStateHandler(profileService, newRoute, logger),
		Route:   handlers.NewRouteHandler(routeCodec, shareBuilder, newRoute, cfg.Share.PublicBaseURL, logger),
	}, middleware.ProfileAuth(jwtService, logger))

	// Everything else belongs to the web application
	switch {
	case agent != nil:
		router.NoRoute(offline.Gateway(agent, origin, logger))
	case origin != nil:
		logger.Info("Offline cache disabled: proxying straight to the application origin")
		router.NoRoute(offline.Gateway(http.DefaultTransport, origin, logger))
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	cronService.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

func newRouteFactory(cfg config.EngineConfig) (engine.Factory, error) {
	var catalog *script.Catalog
	if cfg.CatalogPath != "" {
		var err error
		catalog, err = script.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, err
		}
	}
	return script.New(catalog).NewRoute, nil
}

func newAgent(cfg config.OfflineConfig, origin *url.URL, storage offline.Storage, logger logrus.FieldLogger) (*offline.Agent, error) {
	manifest := offline.NewManifest()
	if cfg.ManifestPath != "" {
		var err error
		manifest, err = offline.LoadManifest(cfg.ManifestPath)
		if err != nil {
			return nil, err
		}
	}

	network := http.DefaultTransport.(*http.Transport).Clone()
	network.ResponseHeaderTimeout = cfg.FetchTimeout

	return offline.NewAgent(offline.Config{
		Version:       version.Version,
		Origin:        origin,
		Manifest:      manifest.With(cfg.Precache...),
		Storage:       storage,
		Network:       network,
		Logger:        logger,
		Concurrency:   cfg.Concurrency,
		MaxEntryBytes: cfg.MaxEntryBytes,
	})
}

// installAndActivate precaches the manifest before the gateway starts serving. A
// failed install leaves the gateway passing requests straight through.
func installAndActivate(agent *offline.Agent, timeout time.Duration, logger logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log := logger.WithField("cache", agent.CacheName())
	if err := agent.Install(ctx); err != nil {
		log.WithError(err).Warn("Offline cache install failed, serving without offline support")
		return
	}
	if err := agent.Activate(ctx); err != nil {
		log.WithError(err).Warn("Offline cache activation failed")
		return
	}
	log.WithField("paths", agent.Manifest().Len()).Info("Offline cache active")
}
