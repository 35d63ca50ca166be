package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/tasknest/apiserver/config"
	"github.com/tasknest/apiserver/internal/auth"
	"github.com/tasknest/apiserver/internal/db"
	"github.com/tasknest/apiserver/internal/handlers"
	"github.com/tasknest/apiserver/internal/logger"
	"github.com/tasknest/apiserver/internal/metrics"
	"github.com/tasknest/apiserver/internal/mq"
	"github.com/tasknest/apiserver/internal/services"
	"github.com/tasknest/apiserver/internal/storage"
	"github.com/tasknest/apiserver/internal/store"
)

const defaultPort = 3000

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	events     *mq.TaskEvents
}

// Deps are the collaborators the router is built from. Events and Objects
// are optional.
type Deps struct {
	DB      *sql.DB
	Events  *mq.TaskEvents
	Objects storage.ObjectStorage
}

// New connects every configured backend and builds the HTTP server.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	backend, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open message queue: %w", err)
	}
	var events *mq.TaskEvents
	if backend != nil {
		events = mq.NewTaskEvents(backend, cfg.MQ.Channel)
		logger.Info("task events enabled", "backend", cfg.MQ.Backend, "channel", cfg.MQ.Channel)
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		if events != nil {
			_ = events.Close()
		}
		_ = dbConn.Close()
		return nil, fmt.Errorf("open object storage: %w", err)
	}
	if objects != nil {
		logger.Info("task export enabled", "backend", cfg.Storage.Backend, "bucket", objects.Bucket())
	}

	router, err := NewRouter(cfg, Deps{DB: dbConn, Events: events, Objects: objects})
	if err != nil {
		if events != nil {
			_ = events.Close()
		}
		_ = dbConn.Close()
		return nil, err
	}

	port := cfg.ServerPort
	if port == 0 {
		port = defaultPort
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		events:     events,
	}, nil
}

// NewRouter wires repositories, services and handlers onto a chi router.
func NewRouter(cfg config.Config, deps Deps) (*chi.Mux, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(deps.DB)
	taskRepo := store.NewTaskRepository(deps.DB)

	userService := services.NewUserService(userRepo, tokens)
	taskService := services.NewTaskService(func(ownerID uuid.UUID) services.OwnerTaskRepository {
		return taskRepo.ForOwner(ownerID)
	})
	if deps.Events != nil {
		taskService.WithEvents(deps.Events)
	}
	if deps.Objects != nil {
		taskService.WithStorage(deps.Objects)
	}

	authMiddleware := handlers.RequireAuth(tokens, userService)
	authHandler := handlers.NewAuthHandler(userService, tokens.TTL(), cfg.Production())
	httpMetrics := metrics.New()

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins:   []string{cfg.ClientURL},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		httpMetrics.Middleware,
	)
	router.NotFound(handlers.NotFound)
	router.MethodNotAllowed(handlers.MethodNotAllowed)
	router.Get("/healthz", handlers.Healthz(deps.DB))
	router.Handle("/metrics", httpMetrics.Handler())
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, authMiddleware)
	})
	router.Route("/api/tasks", func(r chi.Router) {
		handlers.TaskRouter(r, taskService, authMiddleware)
	})

	return router, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the queue and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.events != nil {
		if closeErr := s.events.Close(); closeErr != nil {
			logger.Warn("failed to close message queue", "error", closeErr)
		}
	}
	if s.db != nil {
		if closeErr := s.db.Close(); closeErr != nil {
			logger.Warn("failed to close database", "error", closeErr)
		}
	}
	return err
}
