package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"queuesync/internal/auth"
	"queuesync/internal/constants"
	"queuesync/internal/metrics"
	"queuesync/internal/middleware"
	"queuesync/internal/models"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

type QueueService interface {
	Enqueue(ctx context.Context, serviceType string, estimatedDurationMinutes int) (*models.QueueEntry, error)
	Complete(ctx context.Context, entryID int64, actualDurationMinutes int) error
	CompleteOldest(ctx context.Context, actualDurationMinutes int) (*models.QueueEntry, error)
	CurrentSnapshot(ctx context.Context) (*models.QueueSnapshot, error)
	ListWaiting(ctx context.Context) ([]*models.QueueEntry, error)
	Analytics(ctx context.Context, day string) ([]*models.QueueAnalytics, error)
}

type ChatRelay interface {
	SendFromAdmin(ctx context.Context, body string) (*models.ChatMessage, error)
	Deliver(ctx context.Context, userID, body string) (*models.ChatMessage, error)
	History(ctx context.Context, userID string, limit int) ([]*models.ChatMessage, error)
	AdminUserID() string
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// LiveConnections is the part of the hub the server needs besides the
// upgrade handler itself.
type LiveConnections interface {
	http.Handler
	ClientCount() int
}

type Server struct {
	cfg     *models.Config
	router  *mux.Router
	handler http.Handler
	logger  *logrus.Logger
	queue   QueueService
	chat    ChatRelay
	hub     LiveConnections
	db      HealthChecker
	metrics *metrics.Metrics
	gate    auth.Gate
	limiter *RateLimiter
	verbose bool
	server  *http.Server
}

type ServerDeps struct {
	Queue   QueueService
	Chat    ChatRelay
	Hub     LiveConnections
	DB      HealthChecker
	Metrics *metrics.Metrics
	Gate    auth.Gate
	Verbose bool
}

func NewServer(cfg *models.Config, deps ServerDeps, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		router:  mux.NewRouter(),
		logger:  logger,
		queue:   deps.Queue,
		chat:    deps.Chat,
		hub:     deps.Hub,
		db:      deps.DB,
		metrics: deps.Metrics,
		gate:    deps.Gate,
		limiter: NewRateLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst),
		verbose: deps.Verbose,
	}
	if s.gate == nil {
		s.gate = auth.DenyAll{}
	}

	s.setupRoutes()
	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", auth.AdminTokenHeader, constants.WebhookSignatureHeader},
		MaxAge:         300,
	}).Handler(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger, s.metrics, s.cfg.Server.TrustProxyHeaders))
	if s.verbose {
		s.router.Use(middleware.DetailedLoggingMiddleware(s.logger, middleware.DefaultDetailedLoggingConfig()))
	}

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	s.router.Handle("/ws", s.hub).Methods(http.MethodGet)

	// The /api prefix is what existing browser clients call.
	for _, prefix := range []string{"", "/api"} {
		q := s.router.PathPrefix(prefix + "/queue").Subrouter()
		q.HandleFunc("/status", s.handleQueueStatus()).Methods(http.MethodGet)
		q.Handle("/add", s.admin(s.handleEnqueue())).Methods(http.MethodPost)
		q.Handle("/complete/{id}", s.admin(s.handleComplete())).Methods(http.MethodPost)
		q.Handle("/complete-next", s.admin(s.handleCompleteNext())).Methods(http.MethodPost)
		q.Handle("/waiting", s.admin(s.handleWaiting())).Methods(http.MethodGet)
		q.Handle("/analytics/{date}", s.admin(s.handleAnalytics())).Methods(http.MethodGet)

		c := s.router.PathPrefix(prefix + "/ai-chat").Subrouter()
		c.Handle("/history", s.admin(s.handleChatHistory())).Methods(http.MethodGet)
		c.Handle("/message", s.admin(s.handleChatMessage())).Methods(http.MethodPost)

		s.router.Handle(prefix+"/webhook/ai-response", s.limited(s.handleAIResponseWebhook())).Methods(http.MethodPost)
	}
}

func (s *Server) limited(h http.Handler) http.Handler {
	return s.limiter.Middleware(s.logger, s.cfg.Server.TrustProxyHeaders)(h)
}

// admin applies the rate limit first so rejected tokens still count
// against the caller.
func (s *Server) admin(h http.Handler) http.Handler {
	return s.limited(auth.Middleware(s.gate, s.logger)(h))
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
