package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Abhijeet1005/zendly-assignment/pkg/config"
	"github.com/Abhijeet1005/zendly-assignment/pkg/db"
	"github.com/Abhijeet1005/zendly-assignment/pkg/event"
	"github.com/Abhijeet1005/zendly-assignment/pkg/handler"
	"github.com/Abhijeet1005/zendly-assignment/pkg/jobs"
	"github.com/Abhijeet1005/zendly-assignment/pkg/service"
	"github.com/Abhijeet1005/zendly-assignment/pkg/utils"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// services is the wired engine behind the HTTP API.
type services struct {
	grace         *service.GracePeriodService
	operators     *service.OperatorService
	allocation    *service.AllocationService
	conversations *service.ConversationService
}

func newServices(ctx context.Context, cfg *config.AppConfig, gdb *gorm.DB, emitter *event.Emitter) (*services, error) {
	logger := utils.GetLogger()

	var analyzer service.Analyzer
	if cfg.Gemini.APIKey != "" {
		chatModel, err := service.NewGeminiChatModel(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return nil, err
		}
		analyzer = service.NewAnalysisGateway(chatModel, cfg.Gemini.Timeout)
		logger.Info("AI analysis enabled", "model", cfg.Gemini.Model, "apiKey", utils.MaskSecret(cfg.Gemini.APIKey))
	} else {
		logger.Warn("GEMINI_API_KEY not set, priority falls back to waiting time")
	}

	var orchestrator service.Orchestrator
	if cfg.Orchestrator.BaseURL != "" {
		orchestrator = service.NewOrchestratorClient(cfg.Orchestrator.BaseURL, cfg.Orchestrator.Timeout)
	} else {
		logger.Warn("ORCHESTRATOR_BASE_URL not set, message history and resolution callbacks disabled")
	}

	grace := service.NewGracePeriodService(gdb, cfg.GraceDuration(), emitter)
	scorer := service.NewPriorityScorer(gdb, analyzer, orchestrator, cfg.Allocation.RecentMessages)
	return &services{
		grace:         grace,
		operators:     service.NewOperatorService(gdb, grace, emitter),
		allocation:    service.NewAllocationService(gdb, scorer, cfg.Allocation, emitter),
		conversations: service.NewConversationService(gdb, orchestrator, emitter),
	}, nil
}

type Server struct {
	cfg       *config.AppConfig
	ginEngine *gin.Engine
	db        *gorm.DB
	emitter   *event.Emitter
	services  *services
	logger    *slog.Logger
	closers   []func()
	port      int
	done      chan struct{}
}

func NewServer(ctx context.Context, cfg *config.AppConfig) (*Server, error) {
	gdb, err := db.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, err
	}

	emitter := event.NewEmitter()
	svcs, err := newServices(ctx, cfg, gdb, emitter)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	server := &Server{
		cfg:       cfg,
		ginEngine: ginEngine,
		db:        gdb,
		emitter:   emitter,
		services:  svcs,
		logger:    utils.GetLogger(),
		done:      make(chan struct{}),
	}
	ginEngine.Use(server.requestLogger())
	server.SetupRoutes()
	return server, nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// Start binds the listener, starts the sweep scheduler and the broker
// bridge, and returns. Everything stops when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host(), s.cfg.Port())
	srv := &http.Server{Addr: addr, Handler: s.ginEngine, ReadHeaderTimeout: 10 * time.Second}

	// Attempt to listen on port first; if occupied return error immediately
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	}

	if err := s.startSweep(ctx); err != nil {
		_ = ln.Close()
		return err
	}
	s.startBroker(ctx)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.Close()
	}()

	s.logger.Info("Server listening", "addr", ln.Addr().String())

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	default:
	}
	return nil
}

func (s *Server) startSweep(ctx context.Context) error {
	interval := s.cfg.GracePeriod.SweepInterval

	if s.cfg.GracePeriod.Scheduler == config.SchedulerAsynq {
		sched, err := jobs.NewAsynqScheduler(s.cfg.Redis.URL, s.services.grace, interval)
		if err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return err
		}
		s.closers = append(s.closers, sched.Stop)
		return nil
	}

	var lease jobs.Lease
	if s.cfg.Redis.URL != "" {
		l, err := jobs.DialRedisLease(ctx, s.cfg.Redis.URL, s.cfg.GracePeriod.LeaseTTL)
		if err != nil {
			s.logger.Warn("Redis unavailable, every instance will sweep", "error", err)
		} else {
			lease = l
			s.closers = append(s.closers, func() { _ = l.Close() })
		}
	}
	ticker := jobs.NewTickerScheduler(s.services.grace, lease, interval)
	ticker.Start()
	s.closers = append(s.closers, ticker.Stop)
	return nil
}

func (s *Server) startBroker(ctx context.Context) {
	if s.cfg.AMQP.URL == "" {
		return
	}
	bridge, err := event.DialAMQP(s.cfg.AMQP.URL, s.cfg.AMQP.Exchange)
	if err != nil {
		s.logger.Warn("RabbitMQ unavailable, lifecycle events stay in-process", "error", err)
		return
	}
	detach := bridge.Attach(s.emitter)
	go bridge.Run(ctx)
	s.closers = append(s.closers, detach, func() { _ = bridge.Close() })
}

// Done is closed once the shutdown triggered by Start's context has
// finished draining requests and stopping background work.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Close stops background work in reverse start order and closes the store.
func (s *Server) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *Server) SetupRoutes() {
	s.ginEngine.GET("/healthz", s.health)

	// API group
	// /api
	apiGroup := s.ginEngine.Group("/api", handler.Authenticate())

	handler.NewConversationHandler(s.services.allocation, s.services.conversations).RegisterRoutes(apiGroup)
	handler.NewOperatorHandler(s.services.operators).RegisterRoutes(apiGroup)

	// Lifecycle event stream
	// /api/events/ws
	apiGroup.GET("/events/ws", event.NewWSHandler(s.emitter).Handle)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, database, code := "healthy", "up", http.StatusOK
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		s.logger.Warn("Health check failed", "error", err)
		status, database, code = "unhealthy", "down", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"database":  database,
		"timestamp": time.Now().UTC(),
	})
}
