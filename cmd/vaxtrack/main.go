package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vaxtrack/internal/config"
	httpapi "vaxtrack/internal/http"
	"vaxtrack/internal/repository"
	"vaxtrack/internal/service"
	"vaxtrack/internal/store"
	"vaxtrack/pkg/logger"
	"vaxtrack/pkg/metrics"

	"go.uber.org/zap"
)

const sessionTokenTTL = 12 * time.Hour

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	var (
		db             *sql.DB
		facilitiesRepo repository.FacilitiesRepository
		childrenRepo   repository.ChildrenRepository
		sessionsRepo   repository.SessionsRepository
		backupsRepo    repository.BackupsRepository
	)

	driver := cfg.DB.Driver
	switch driver {
	case "postgres":
		db, err = repository.OpenPostgres(&cfg.DB.Postgres)
		if err != nil {
			log.Fatal("Failed to open postgres database", zap.Error(err))
		}
		facilitiesRepo = repository.NewPostgresFacilitiesRepository(db)
		childrenRepo = repository.NewPostgresChildrenRepository(db)
		sessionsRepo = repository.NewPostgresSessionsRepository(db)
		backupsRepo = repository.NewPostgresBackupsRepository(db)
	case "memory":
		// 联测/演示用，进程退出即丢数据
		mem := repository.NewMemoryStore()
		facilitiesRepo = mem
		childrenRepo = mem
		sessionsRepo = mem
		backupsRepo = mem
		log.Warn("Using in-memory storage, data will not survive a restart")
	default:
		driver = "sqlite"
		db, err = repository.OpenSqlite(cfg.DB.SqlitePath)
		if err != nil {
			log.Fatal("Failed to open sqlite database", zap.Error(err))
		}
		facilitiesRepo = repository.NewSqliteFacilitiesRepository(db)
		childrenRepo = repository.NewSqliteChildrenRepository(db)
		sessionsRepo = repository.NewSqliteSessionsRepository(db)
		backupsRepo = repository.NewSqliteBackupsRepository(db)
	}

	if db != nil {
		if err := repository.RunMigrations(context.Background(), db, driver, log); err != nil {
			log.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	m := metrics.New("vaxtrack")
	engine := service.NewStatusEngine(cfg.DueSoonDays, cfg.UpcomingDays)
	edits := store.NewMemoryEditBuffer()

	childService := service.NewChildService(childrenRepo, engine, edits, m, log)
	authService := service.NewAuthService(facilitiesRepo, sessionsRepo, m, log)
	backupService := service.NewBackupService(facilitiesRepo, childrenRepo, backupsRepo, sessionsRepo, m, log)
	exportService := service.NewExportService(childrenRepo, engine, log)

	tokens := httpapi.NewTokenManager(cfg.JWTSecret, sessionTokenTTL)

	router := httpapi.NewRouter(log)
	router.RegisterAuthRoutes(httpapi.NewAuthHandler(authService, tokens, log))
	router.RegisterChildRoutes(httpapi.NewChildrenHandler(childService, edits, tokens, log))
	router.RegisterBackupRoutes(httpapi.NewBackupHandler(backupService, exportService, tokens, log))
	router.RegisterOpsRoutes()

	srv := service.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		log.Error("HTTP server stopped", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
}
