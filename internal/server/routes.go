package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Tomlord1122/todo-api/internal/service"
)

const maxBodyBytes = 1 << 20

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  s.logger.StandardLog(),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.instrument)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	r.Get("/health", s.healthHandler)
	r.Get("/ready", s.readyHandler)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	r.Route("/api/todos", func(r chi.Router) {
		r.Get("/", s.getAllTodosHandler)
		r.Post("/", s.createTodoHandler)
		r.Get("/stats", s.statsHandler)
		r.Post("/clear-completed", s.clearCompletedHandler)
		r.Get("/{id}", s.getTodoByIDHandler)
		r.Patch("/{id}", s.updateTodoHandler)
		r.Delete("/{id}", s.deleteTodoHandler)
	})

	return r
}

// healthHandler reports liveness and never touches the store.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	stats := s.store.Health()
	if status, ok := stats["status"]; ok && status == "down" {
		respondWithJSON(w, http.StatusServiceUnavailable, stats)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (s *Server) getAllTodosHandler(w http.ResponseWriter, r *http.Request) {
	todos, err := s.todoService.GetAllTodos(r.Context())
	if err != nil {
		s.respondWithServiceError(w, err, "Failed to retrieve todos")
		return
	}
	respondWithJSON(w, http.StatusOK, todos)
}

func (s *Server) createTodoHandler(w http.ResponseWriter, r *http.Request) {
	var req service.CreateTodoRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	todo, err := s.todoService.CreateTodo(r.Context(), req)
	if err != nil {
		s.respondWithServiceError(w, err, "Failed to create todo")
		return
	}
	respondWithJSON(w, http.StatusCreated, todo)
}

func (s *Server) getTodoByIDHandler(w http.ResponseWriter, r *http.Request) {
	todo, err := s.todoService.GetTodoByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondWithServiceError(w, err, "Failed to retrieve todo")
		return
	}
	respondWithJSON(w, http.StatusOK, todo)
}

func (s *Server) updateTodoHandler(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateTodoRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	todo, err := s.todoService.UpdateTodo(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.respondWithServiceError(w, err, "Failed to update todo")
		return
	}
	respondWithJSON(w, http.StatusOK, todo)
}

func (s *Server) deleteTodoHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.todoService.DeleteTodo(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondWithServiceError(w, err, "Failed to delete todo")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// clearCompletedHandler answers 207 when only some of the deletes went through.
func (s *Server) clearCompletedHandler(w http.ResponseWriter, r *http.Request) {
	result, err := s.todoService.ClearCompleted(r.Context())
	if err != nil {
		s.respondWithServiceError(w, err, "Failed to clear completed todos")
		return
	}
	status := http.StatusOK
	if result.Partial() {
		status = http.StatusMultiStatus
	}
	respondWithJSON(w, status, result)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.todoService.Stats(r.Context())
	if err != nil {
		s.respondWithServiceError(w, err, "Failed to compute stats")
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// decodeJSON reads the request body into dst. An empty body leaves dst at its
// zero value; anything after the first JSON value is rejected. It writes the
// error response itself and returns false when the body is unusable.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	err := decoder.Decode(dst)
	if errors.Is(err, io.EOF) {
		return true
	}
	if err == nil {
		var extra json.RawMessage
		if err = decoder.Decode(&extra); errors.Is(err, io.EOF) {
			return true
		}
		if err == nil {
			respondWithError(w, http.StatusBadRequest, "Request body must only contain a single JSON value")
			return false
		}
	}

	var syntaxError *json.SyntaxError
	var unmarshalTypeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError):
		msg := fmt.Sprintf("Request body contains badly-formed JSON (at position %d)", syntaxError.Offset)
		respondWithError(w, http.StatusBadRequest, msg)
	case errors.Is(err, io.ErrUnexpectedEOF):
		respondWithError(w, http.StatusBadRequest, "Request body contains badly-formed JSON")
	case errors.As(err, &unmarshalTypeError):
		msg := fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d)", unmarshalTypeError.Field, unmarshalTypeError.Offset)
		respondWithError(w, http.StatusBadRequest, msg)
	case errors.As(err, &maxBytesError):
		msg := fmt.Sprintf("Request body must not be larger than %d bytes", maxBytesError.Limit)
		respondWithError(w, http.StatusRequestEntityTooLarge, msg)
	case errors.Is(err, service.ErrNotObject):
		respondWithError(w, http.StatusBadRequest, service.ErrNotObject.Error())
	case strings.HasPrefix(err.Error(), "json: "):
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
	default:
		s.logger.Error("decoding request body", "path", r.URL.Path, "err", err)
		respondWithError(w, http.StatusInternalServerError, "Error processing request")
	}
	return false
}

func (s *Server) respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrTextRequired):
		respondWithError(w, http.StatusBadRequest, service.ErrTextRequired.Error())
	case errors.Is(err, service.ErrNotFound):
		respondWithError(w, http.StatusNotFound, service.ErrNotFound.Error())
	default:
		s.logger.Error(fallback, "err", err)
		respondWithError(w, http.StatusInternalServerError, fallback)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal server error preparing response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
