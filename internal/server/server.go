package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Tomlord1122/todo-api/internal/config"
	"github.com/Tomlord1122/todo-api/internal/service"
)

// HealthChecker reports the status of the storage backend.
type HealthChecker interface {
	Health() map[string]string
}

type Server struct {
	todoService service.TodoService
	store       HealthChecker
	logger      *log.Logger
	corsOrigins []string
	metrics     *metrics
}

func newServer(cfg config.Config, todoService service.TodoService, store HealthChecker, logger *log.Logger) *Server {
	return &Server{
		todoService: todoService,
		store:       store,
		logger:      logger,
		corsOrigins: cfg.CORSAllowedOrigins,
		metrics:     newMetrics(),
	}
}

// NewServer builds the HTTP server listening on cfg.Addr().
func NewServer(cfg config.Config, todoService service.TodoService, store HealthChecker, logger *log.Logger) *http.Server {
	appServer := newServer(cfg, todoService, store, logger)

	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      appServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorLog:     logger.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel}),
	}
}
