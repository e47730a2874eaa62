package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/finlayjack89/Vinted-HQ-sub001/internal/cache"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/config"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/events"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/gateway"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/handler"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/repository"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/router"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/scheduler"
	"github.com/finlayjack89/Vinted-HQ-sub001/internal/service"
	"github.com/finlayjack89/Vinted-HQ-sub001/pkg/logger"
)

func main() {
	cfg := config.MustLoad()

	log := logger.New(logger.Options{
		Service: cfg.App.Name,
		Level:   cfg.App.LogLevel,
		Format:  cfg.App.LogFormat,
	})
	log.Info().Str("environment", cfg.App.Environment).Msg("starting vinted-hq vault daemon")

	// SQLite always backs the queue and ontology tables; the items table can
	// move to MySQL.
	sqliteDB, err := repository.OpenSQLite(cfg.Vault.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open vault database")
	}
	defer sqliteDB.Close()

	var vaultRepo repository.VaultRepository
	switch cfg.Vault.Type {
	case "mysql":
		mysqlDB, err := sql.Open("mysql", cfg.Vault.MySQLDSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open MySQL vault")
		}
		mysqlDB.SetMaxOpenConns(10)
		mysqlDB.SetMaxIdleConns(5)
		mysqlDB.SetConnMaxLifetime(5 * time.Minute)
		if err := mysqlDB.Ping(); err != nil {
			log.Fatal().Err(err).Msg("failed to ping MySQL vault")
		}
		defer mysqlDB.Close()
		vaultRepo = repository.NewMySQLVaultRepository(mysqlDB)
		log.Info().Msg("MySQL vault repository initialized")
	default:
		vaultRepo = repository.NewSQLiteVaultRepository(sqliteDB)
		log.Info().Str("path", cfg.Vault.Path).Msg("SQLite vault repository initialized")
	}

	queueRepo := repository.NewSQLiteQueueRepository(sqliteDB)
	ontologyRepo := repository.NewSQLiteOntologyRepository(sqliteDB)

	var detailCache cache.Cache
	switch cfg.Cache.Type {
	case "redis":
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		detailCache = redisCache
		log.Info().Str("addr", cfg.Cache.RedisAddress()).Msg("Redis detail cache initialized")
	default:
		detailCache = cache.NewMemoryCache()
		log.Info().Msg("in-memory detail cache initialized")
	}
	defer detailCache.Close()

	bus := events.NewBus(log)
	defer bus.Close()

	gw := gateway.NewVintedGateway(cfg.Gateway, log)

	// One lock set shared by every item writer.
	itemLocks := repository.NewItemLocks()

	ontologyService := service.NewOntologyService(ontologyRepo, vaultRepo, gw, bus, log)
	vaultService := service.NewVaultService(vaultRepo, queueRepo, detailCache, gw, ontologyService, itemLocks, cfg.Hydration.TTL, log)
	reconcileService := service.NewReconcileService(vaultRepo, queueRepo, gw, bus, itemLocks, log)

	sched, err := scheduler.New(queueRepo, vaultRepo, gw, bus, itemLocks, cfg.Scheduler, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize scheduler")
	}
	defer sched.Stop()

	r := router.New(router.Config{
		HealthHandler:   handler.NewHealthHandler(sqliteDB),
		WardrobeHandler: handler.NewWardrobeHandler(vaultService),
		SyncHandler:     handler.NewSyncHandler(reconcileService),
		QueueHandler:    handler.NewQueueHandler(sched),
		OntologyHandler: handler.NewOntologyHandler(ontologyService),
		EventsHandler:   handler.NewEventsHandler(bus),
		Logger:          log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Address()).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	log.Info().Msg("server stopped")
}
