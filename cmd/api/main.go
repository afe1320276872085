package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Tomlord1122/todo-api/internal/config"
	"github.com/Tomlord1122/todo-api/internal/database"
	"github.com/Tomlord1122/todo-api/internal/logging"
	"github.com/Tomlord1122/todo-api/internal/repository"
	"github.com/Tomlord1122/todo-api/internal/server"
	"github.com/Tomlord1122/todo-api/internal/service"
)

func gracefulShutdown(apiServer *http.Server, dbService database.Service, logger *log.Logger, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	logger.Info("shutting down gracefully, press Ctrl+C again to force")
	stop()

	// The server has 5 seconds to finish the requests it is currently handling.
	ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctxTimeout); err != nil {
		logger.Error("server forced to shutdown", "err", err)
	}

	if dbService != nil {
		if err := dbService.Close(); err != nil {
			logger.Error("closing database connection pool", "err", err)
		}
	}

	logger.Info("server exiting")
	done <- true
}

// openStore picks the repository backend named by cfg.StoreDriver. The
// returned database.Service is nil for the file store.
func openStore(cfg config.Config, logger *log.Logger) (repository.TodoRepository, server.HealthChecker, database.Service, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		dbService, err := database.New(cfg.Database, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := repository.Migrate(dbService.GetDB()); err != nil {
			_ = dbService.Close()
			return nil, nil, nil, fmt.Errorf("migrate todos table: %w", err)
		}
		return repository.NewGormTodoRepository(dbService.GetDB()), dbService, dbService, nil
	default:
		fileStore, err := repository.NewFileStore(cfg.DataDir, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		return fileStore, fileStore, nil, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration", "err", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	todoRepo, health, dbService, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("storage is unusable", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}

	todoService := service.NewTodoService(todoRepo, logger)
	apiServer := server.NewServer(cfg, todoService, health, logger)

	done := make(chan bool, 1)
	go gracefulShutdown(apiServer, dbService, logger, done)

	logger.Info("starting server", "addr", apiServer.Addr, "store", cfg.StoreDriver)
	err = apiServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", "err", err)
	}

	<-done
	logger.Info("graceful shutdown complete")
}
